package escrow

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletled/internal/domain"
	"github.com/GlebRadaev/walletled/internal/service/escrowservice"
	"github.com/GlebRadaev/walletled/internal/service/executor"
	"github.com/GlebRadaev/walletled/pkg/auth"
)

func NewMock(t *testing.T) (*EscrowHandler, *MockService) {
	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	handler := New(service)
	defer ctrl.Finish()
	return handler, service
}

// newRequest builds an authenticated request carrying the escrow id as a
// chi URL param, the way the router delivers it.
func newRequest(method, id, body string, userID int, isAdmin bool) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, "/api/escrow/"+id, bytes.NewBufferString(body))
	} else {
		r = httptest.NewRequest(method, "/api/escrow/"+id, nil)
	}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(context.Background(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.IsAdminKey, isAdmin)
	return r.WithContext(ctx)
}

func TestFundHandler(t *testing.T) {
	handler, service := NewMock(t)
	escrowID := uuid.New()

	tests := []struct {
		name          string
		id            string
		prepareMock   func()
		expectedCode  int
		expectedError string
	}{
		{
			name: "Successful funding",
			id:   escrowID.String(),
			prepareMock: func() {
				service.EXPECT().Fund(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
					Return(&domain.Escrow{ID: escrowID, BuyerID: 1, SellerID: 2, Status: domain.EscrowFunded}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:          "Invalid escrow id",
			id:            "not-a-uuid",
			prepareMock:   func() {},
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "Invalid escrow id",
		},
		{
			name: "Caller is not the buyer",
			id:   escrowID.String(),
			prepareMock: func() {
				service.EXPECT().Fund(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrNotParticipant)
			},
			expectedCode:  http.StatusForbidden,
			expectedError: "not a party",
		},
		{
			name: "Insufficient available balance",
			id:   escrowID.String(),
			prepareMock: func() {
				service.EXPECT().Fund(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
					Return(nil, executor.ErrInsufficientFunds)
			},
			expectedCode:  http.StatusPaymentRequired,
			expectedError: "Insufficient available balance",
		},
		{
			name: "Escrow not found",
			id:   escrowID.String(),
			prepareMock: func() {
				service.EXPECT().Fund(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrEscrowNotFound)
			},
			expectedCode:  http.StatusNotFound,
			expectedError: "Escrow not found",
		},
		{
			name: "Escrow is not fundable",
			id:   escrowID.String(),
			prepareMock: func() {
				service.EXPECT().Fund(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrInvalidStateTransition)
			},
			expectedCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()

			r := newRequest(http.MethodPost, tt.id, "", 1, false)
			w := httptest.NewRecorder()

			handler.Fund(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
		})
	}
}

func TestReleaseHandler(t *testing.T) {
	handler, service := NewMock(t)
	escrowID := uuid.New()

	tests := []struct {
		name          string
		body          string
		isAdmin       bool
		prepareMock   func()
		expectedCode  int
		expectedError string
	}{
		{
			name: "Release defaults to buyer confirmation",
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReasonBuyerConfirmed, escrowservice.Actor{UserID: 1}).
					Return(&domain.Escrow{ID: escrowID, BuyerID: 1, SellerID: 2, Status: domain.EscrowReleased}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:    "Admin resolves a dispute",
			body:    `{"reason":"DISPUTE_RESOLVED"}`,
			isAdmin: true,
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReasonDisputeResolved, escrowservice.Actor{UserID: 1, IsAdmin: true}).
					Return(&domain.Escrow{ID: escrowID, BuyerID: 1, SellerID: 2, Status: domain.EscrowReleased}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Reserved reason is forbidden for regular users",
			body: `{"reason":"DISPUTE_RESOLVED"}`,
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReasonDisputeResolved, escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrAdminRequired)
			},
			expectedCode:  http.StatusForbidden,
			expectedError: "reserved for administrators",
		},
		{
			name: "Unknown reason is rejected",
			body: `{"reason":"BECAUSE"}`,
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReleaseReason("BECAUSE"), escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrInvalidReason)
			},
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "unknown release reason",
		},
		{
			name: "Invalid state transition",
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReasonBuyerConfirmed, escrowservice.Actor{UserID: 1}).
					Return(nil, escrowservice.ErrInvalidStateTransition)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "Internal server error",
			prepareMock: func() {
				service.EXPECT().Release(gomock.Any(), escrowID, domain.ReasonBuyerConfirmed, escrowservice.Actor{UserID: 1}).
					Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()

			r := newRequest(http.MethodPost, escrowID.String(), tt.body, 1, tt.isAdmin)
			w := httptest.NewRecorder()

			handler.Release(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
		})
	}
}

func TestRefundHandler(t *testing.T) {
	handler, service := NewMock(t)
	escrowID := uuid.New()

	t.Run("Refund defaults to seller confirmation", func(t *testing.T) {
		service.EXPECT().Refund(gomock.Any(), escrowID, domain.ReasonSellerConfirmed, escrowservice.Actor{UserID: 2}).
			Return(&domain.Escrow{ID: escrowID, BuyerID: 1, SellerID: 2, Status: domain.EscrowRefunded}, nil)

		r := newRequest(http.MethodPost, escrowID.String(), "", 2, false)
		w := httptest.NewRecorder()

		handler.Refund(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Only the seller may refund", func(t *testing.T) {
		service.EXPECT().Refund(gomock.Any(), escrowID, domain.ReasonSellerConfirmed, escrowservice.Actor{UserID: 1}).
			Return(nil, escrowservice.ErrNotParticipant)

		r := newRequest(http.MethodPost, escrowID.String(), "", 1, false)
		w := httptest.NewRecorder()

		handler.Refund(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestDisputeHandler(t *testing.T) {
	handler, service := NewMock(t)
	escrowID := uuid.New()

	t.Run("Party opens a dispute", func(t *testing.T) {
		service.EXPECT().Dispute(gomock.Any(), escrowID, escrowservice.Actor{UserID: 1}).
			Return(&domain.Escrow{ID: escrowID, BuyerID: 1, SellerID: 2, Status: domain.EscrowDisputed}, nil)

		r := newRequest(http.MethodPost, escrowID.String(), "", 1, false)
		w := httptest.NewRecorder()

		handler.Dispute(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Stranger is rejected", func(t *testing.T) {
		service.EXPECT().Dispute(gomock.Any(), escrowID, escrowservice.Actor{UserID: 7}).
			Return(nil, escrowservice.ErrNotParticipant)

		r := newRequest(http.MethodPost, escrowID.String(), "", 7, false)
		w := httptest.NewRecorder()

		handler.Dispute(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
