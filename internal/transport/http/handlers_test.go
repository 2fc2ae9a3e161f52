package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chaintrail/internal/audit"
	"chaintrail/internal/custody"
	"chaintrail/internal/dispatch"
	"chaintrail/internal/history"
	"chaintrail/internal/identity"
	"chaintrail/internal/ledger"
	"chaintrail/internal/registry"
	id "chaintrail/pkg/domain"
)

const (
	manufacturer = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	distributor  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	retailer     = "0xcccccccccccccccccccccccccccccccccccccccc"
	consumer     = "0xdddddddddddddddddddddddddddddddddddddddd"
)

type HandlersSuite struct {
	suite.Suite
	server   *httptest.Server
	identity *identity.Service
	tokens   map[string]string
}

func (s *HandlersSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := ledger.NewInMemory(id.Address(manufacturer))
	pub := audit.NewPublisher(audit.NewInMemoryStore())
	disp := dispatch.NewDispatcher(dispatch.NewInMemoryRoleStore(time.Hour))
	s.identity = identity.NewService("test-signing-key", "chaintrail-test")

	handler := NewHandler(
		registry.NewService(mem),
		custody.NewService(mem, pub, nil, log),
		history.NewService(mem),
		disp,
		s.identity,
		pub,
		log,
	)
	s.server = httptest.NewServer(NewRouter(handler, s.identity, nil, log))

	s.tokens = make(map[string]string)
	for addr, role := range map[string]id.Role{
		manufacturer: id.RoleManufacturer,
		distributor:  id.RoleDistributor,
		retailer:     id.RoleRetailer,
		consumer:     id.RoleConsumer,
	} {
		token, err := s.identity.GenerateToken(id.Address(addr), role, time.Hour)
		s.Require().NoError(err)
		s.tokens[addr] = token
		s.selectRole(addr, role.String())
	}
}

func (s *HandlersSuite) TearDownTest() {
	s.server.Close()
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) request(method, path, addr string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if addr != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[addr])
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) decodeBody(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *HandlersSuite) selectRole(addr, role string) {
	resp := s.request(http.MethodPost, "/role", addr, map[string]string{"role": role})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) addProduct(name, description string) custody.Receipt {
	resp := s.request(http.MethodPost, "/products", manufacturer,
		map[string]string{"name": name, "description": description})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var receipt custody.Receipt
	s.decodeBody(resp, &receipt)
	return receipt
}

func (s *HandlersSuite) transfer(productID id.ProductID, from, to string) {
	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/transfer", productID),
		from, map[string]string{"to": to})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) TestHealth() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) TestAuthRequired() {
	resp := s.request(http.MethodGet, "/products", "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersSuite) TestTokenEndpoint() {
	resp := s.request(http.MethodPost, "/auth/token", "",
		map[string]string{"address": manufacturer, "role": "manufacturer"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
	}
	s.decodeBody(resp, &body)
	s.NotEmpty(body.Token)

	claims, err := s.identity.ValidateToken(body.Token)
	s.Require().NoError(err)
	s.Equal(id.Address(manufacturer), claims.Address)
	s.Equal(id.RoleManufacturer, claims.Role)
}

func (s *HandlersSuite) TestTokenEndpoint_BadAddress() {
	resp := s.request(http.MethodPost, "/auth/token", "",
		map[string]string{"address": "not-an-address"})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestAddAndGetProduct() {
	receipt := s.addProduct("Widget", "A widget")
	s.Equal(id.ProductID(0), receipt.ProductID)

	resp := s.request(http.MethodGet, "/products/0", consumer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var view registry.View
	s.decodeBody(resp, &view)
	s.Equal("Widget", view.Name)
	s.Equal("created", view.StatusLabel)
	s.Equal(id.Address(manufacturer), view.Owner)
}

func (s *HandlersSuite) TestGetProduct_NotFound() {
	resp := s.request(http.MethodGet, "/products/42", consumer, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	var envelope errorEnvelope
	s.decodeBody(resp, &envelope)
	s.Equal("not_found", envelope.Error)
}

func (s *HandlersSuite) TestGetProduct_BadID() {
	resp := s.request(http.MethodGet, "/products/abc", consumer, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestRoleGating() {
	// A consumer's dashboard has no add_product.
	resp := s.request(http.MethodPost, "/products", consumer,
		map[string]string{"name": "Fake"})
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
	var envelope errorEnvelope
	s.decodeBody(resp, &envelope)
	s.Equal("unauthorized", envelope.Error)
}

func (s *HandlersSuite) TestLedgerGuardBehindMatchingRole() {
	// The distributor declares the manufacturer role; the dispatcher lets the
	// call through, the ledger's manufacturer guard still refuses it.
	s.selectRole(distributor, "manufacturer")
	resp := s.request(http.MethodPost, "/products", distributor,
		map[string]string{"name": "Fake"})
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.selectRole(distributor, "distributor")
}

func (s *HandlersSuite) TestTransferAcceptFlow() {
	receipt := s.addProduct("Widget", "")
	s.transfer(receipt.ProductID, manufacturer, distributor)

	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/accept", receipt.ProductID), distributor, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var accepted custody.Receipt
	s.decodeBody(resp, &accepted)
	s.False(accepted.TxRef.IsNil())

	resp = s.request(http.MethodGet, fmt.Sprintf("/products/%d", receipt.ProductID), consumer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var view registry.View
	s.decodeBody(resp, &view)
	s.Equal("confirmed", view.StatusLabel)
	s.Equal(id.Address(distributor), view.Owner)
}

func (s *HandlersSuite) TestAccept_WrongState_Conflict() {
	receipt := s.addProduct("Widget", "")
	s.transfer(receipt.ProductID, manufacturer, distributor)

	for range 2 {
		resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/accept", receipt.ProductID), distributor, nil)
		resp.Body.Close()
	}
	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/accept", receipt.ProductID), distributor, nil)
	s.Require().Equal(http.StatusConflict, resp.StatusCode)
	var envelope errorEnvelope
	s.decodeBody(resp, &envelope)
	s.Equal("invalid_state", envelope.Error)
}

func (s *HandlersSuite) TestAvailabilityRequiresFlag() {
	receipt := s.addProduct("Widget", "")
	s.transfer(receipt.ProductID, manufacturer, retailer)
	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/receive", receipt.ProductID), retailer, nil)
	resp.Body.Close()

	resp = s.request(http.MethodPost, fmt.Sprintf("/products/%d/availability", receipt.ProductID),
		retailer, map[string]string{})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestListProducts_Views() {
	first := s.addProduct("Widget", "")
	second := s.addProduct("Gadget", "")
	s.transfer(first.ProductID, manufacturer, distributor)
	s.transfer(second.ProductID, manufacturer, distributor)
	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/accept", second.ProductID), distributor, nil)
	resp.Body.Close()

	resp = s.request(http.MethodGet, "/products?view=pending", distributor, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var pending listResponse
	s.decodeBody(resp, &pending)
	s.Require().Len(pending.Products, 1)
	s.Equal(first.ProductID, pending.Products[0].ID)

	resp = s.request(http.MethodGet, "/products?view=confirmed", distributor, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var confirmed listResponse
	s.decodeBody(resp, &confirmed)
	s.Require().Len(confirmed.Products, 1)
	s.Equal(second.ProductID, confirmed.Products[0].ID)

	resp = s.request(http.MethodGet, "/products?status=pending_acceptance", consumer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var byStatus listResponse
	s.decodeBody(resp, &byStatus)
	s.Len(byStatus.Products, 1)
}

func (s *HandlersSuite) TestHistoryEndpoint() {
	receipt := s.addProduct("Widget", "")
	s.transfer(receipt.ProductID, manufacturer, distributor)
	resp := s.request(http.MethodPost, fmt.Sprintf("/products/%d/accept", receipt.ProductID), distributor, nil)
	resp.Body.Close()
	resp = s.request(http.MethodPost, fmt.Sprintf("/products/%d/counterfeit", receipt.ProductID), consumer, nil)
	resp.Body.Close()

	resp = s.request(http.MethodGet, fmt.Sprintf("/products/%d/history", receipt.ProductID), consumer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var trail historyResponse
	s.decodeBody(resp, &trail)
	s.Require().Len(trail.Events, 3)
	s.Equal(ledger.EventOwnershipTransferred, trail.Events[0].Kind)
	s.Equal(ledger.EventProductAccepted, trail.Events[1].Kind)
	s.Equal(ledger.EventCounterfeitReported, trail.Events[2].Kind)
}

func (s *HandlersSuite) TestAuditEndpoint() {
	s.addProduct("Widget", "")

	resp := s.request(http.MethodGet, "/audit", manufacturer, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var log auditResponse
	s.decodeBody(resp, &log)
	s.Require().Len(log.Entries, 1)
	s.Equal(audit.ActionProductAdded, log.Entries[0].Action)
	s.Equal(audit.OutcomeConfirmed, log.Entries[0].Outcome)
}
