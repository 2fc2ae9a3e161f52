// Package httptransport is the thin HTTP layer over the gateway services. It
// decodes requests, resolves the caller from the request context, gates the
// call on the caller's declared role, and delegates; no business logic lives
// here.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chaintrail/internal/audit"
	"chaintrail/internal/custody"
	"chaintrail/internal/dispatch"
	"chaintrail/internal/history"
	"chaintrail/internal/identity"
	"chaintrail/internal/ledger"
	"chaintrail/internal/registry"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
	"chaintrail/pkg/requestcontext"
)

const tokenLifetime = 24 * time.Hour

type Handler struct {
	registry   *registry.Service
	custody    *custody.Service
	history    *history.Service
	dispatcher *dispatch.Dispatcher
	identity   *identity.Service
	audit      *audit.Publisher
	log        *slog.Logger
}

func NewHandler(
	reg *registry.Service,
	cust *custody.Service,
	hist *history.Service,
	disp *dispatch.Dispatcher,
	ident *identity.Service,
	pub *audit.Publisher,
	log *slog.Logger,
) *Handler {
	return &Handler{
		registry:   reg,
		custody:    cust,
		history:    hist,
		dispatcher: disp,
		identity:   ident,
		audit:      pub,
		log:        log,
	}
}

func decode(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "malformed request body")
	}
	return nil
}

func productIDParam(r *http.Request) (id.ProductID, error) {
	return id.ParseProductID(chi.URLParam(r, "productID"))
}

// --- identity ---

type tokenRequest struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// handleToken mints a bearer token for an address the external signing agent
// has authenticated. The agent fronts this endpoint in production; the gateway
// itself does not verify address control.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := id.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	role := id.RoleUnknown
	if req.Role != "" {
		if role, err = id.ParseRole(req.Role); err != nil {
			writeError(w, err)
			return
		}
	}
	token, err := h.identity.GenerateToken(addr, role, tokenLifetime)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed"))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresIn: int64(tokenLifetime.Seconds())})
}

// --- role selection ---

type selectRoleRequest struct {
	Role string `json:"role"`
}

type roleResponse struct {
	Role       string               `json:"role"`
	Operations []dispatch.Operation `json:"operations"`
}

func (h *Handler) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	var req selectRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := id.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.SelectRole(r.Context(), caller, role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{Role: role.String(), Operations: dispatch.OperationsFor(role)})
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	role, err := h.dispatcher.RoleFor(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{Role: role.String(), Operations: dispatch.OperationsFor(role)})
}

// --- commands ---

type addProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpAddProduct); err != nil {
		writeError(w, err)
		return
	}
	var req addProductRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	receipt, err := h.custody.AddProduct(r.Context(), caller, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

type transferRequest struct {
	To string `json:"to"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpTransferProduct); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	receipt, err := h.custody.Transfer(r.Context(), caller, productID, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, dispatch.OpAcceptProduct, h.custody.Accept)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, dispatch.OpReceiveProduct, h.custody.Receive)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, op dispatch.Operation,
	submit func(ctx context.Context, caller id.Address, productID id.ProductID) (custody.Receipt, error),
) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, op); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	receipt, err := submit(r.Context(), caller, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpSetAvailability); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req availabilityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Available == nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "available flag is required"))
		return
	}
	receipt, err := h.custody.SetAvailability(r.Context(), caller, productID, *req.Available)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleCounterfeit(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpReportCounterfeit); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	receipt, err := h.custody.ReportCounterfeit(r.Context(), caller, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// --- reads ---

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpGetProduct); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.registry.GetProduct(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type listResponse struct {
	Products []registry.View `json:"products"`
}

// handleListProducts enumerates products. The view query parameter selects the
// caller-centric dashboards: pending (awaiting my confirmation) or confirmed
// (mine, ready to move). Without it, owner and status filter the full list.
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if err := h.dispatcher.Gate(ctx, caller, dispatch.OpListProducts); err != nil {
		writeError(w, err)
		return
	}

	var (
		views []registry.View
		err   error
	)
	switch view := r.URL.Query().Get("view"); view {
	case "pending":
		views, err = h.registry.PendingFor(ctx, caller)
	case "confirmed":
		views, err = h.registry.ConfirmedFor(ctx, caller)
	case "":
		var filter registry.Filter
		if ownerParam := r.URL.Query().Get("owner"); ownerParam != "" {
			if filter.Owner, err = id.ParseAddress(ownerParam); err != nil {
				writeError(w, err)
				return
			}
		}
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			status, perr := id.ParseCustodyStatus(statusParam)
			if perr != nil {
				writeError(w, perr)
				return
			}
			filter.Status = &status
		}
		views, err = h.registry.ListProducts(ctx, filter)
	default:
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "unknown view"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Products: views})
}

type historyResponse struct {
	ProductID id.ProductID   `json:"productId"`
	Events    []ledger.Event `json:"events"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if err := h.dispatcher.Gate(r.Context(), caller, dispatch.OpGetHistory); err != nil {
		writeError(w, err)
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.history.Reconstruct(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	writeJSON(w, http.StatusOK, historyResponse{ProductID: productID, Events: events})
}

// --- audit ---

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

// handleAuditLog returns the caller's own submitted-command log.
func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	entries, err := h.audit.List(r.Context(), caller)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit log read failed"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}
