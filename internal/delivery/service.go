package delivery

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/kiranahub/backend-pos/internal/common"
	"github.com/kiranahub/backend-pos/internal/events"
	"github.com/kiranahub/backend-pos/internal/obs"
	"github.com/kiranahub/backend-pos/internal/order"
)

type agentStore interface {
	CreateAgent(ctx context.Context, name, phone string) (Agent, error)
	GetAgentByPhone(ctx context.Context, phone string) (Agent, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	VerifyAgent(ctx context.Context, id, adminID uuid.UUID) (bool, error)
}

type orderStore interface {
	ListAssigned(ctx context.Context, agentID uuid.UUID) ([]order.Summary, error)
	GetDeliveryOTP(ctx context.Context, id uuid.UUID) (string, uuid.NullUUID, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type phoneResolver interface {
	PhoneForUser(ctx context.Context, id uuid.UUID) (string, error)
}

// Service runs the delivery partner portal: agent onboarding and the
// handover flow for paid orders.
type Service struct {
	Agents agentStore
	Orders orderStore
	Phones phoneResolver
	Bus    *events.Bus
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RegisterAgentInput is the admin payload for onboarding an agent.
type RegisterAgentInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required,min=10,max=16"`
}

// RegisterAgent creates an unverified agent record.
func (s *Service) RegisterAgent(ctx context.Context, input RegisterAgentInput) (Agent, error) {
	if err := common.ValidateStruct(input); err != nil {
		return Agent{}, err
	}
	agent, err := s.Agents.CreateAgent(ctx, input.Name, input.Phone)
	if err != nil {
		return Agent{}, fmt.Errorf("delivery: create agent: %w", err)
	}
	return agent, nil
}

// VerifyAgent records the admin sign-off that allows the agent to work orders.
func (s *Service) VerifyAgent(ctx context.Context, agentID, adminID uuid.UUID) (Agent, error) {
	changed, err := s.Agents.VerifyAgent(ctx, agentID, adminID)
	if err != nil {
		return Agent{}, fmt.Errorf("delivery: verify agent: %w", err)
	}
	agent, err := s.Agents.GetAgentByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, common.NotFoundError("agent not found")
		}
		return Agent{}, fmt.Errorf("delivery: load agent: %w", err)
	}
	if !changed {
		// already verified, treat as idempotent
		return agent, nil
	}
	return agent, nil
}

// ListAgents returns every registered agent for the back office.
func (s *Service) ListAgents(ctx context.Context) ([]Agent, error) {
	agents, err := s.Agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("delivery: list agents: %w", err)
	}
	return agents, nil
}

// agentForUser resolves the agent record behind an authenticated portal user.
// Portal users sign in with the phone OTP flow, so the account phone is the
// join key.
func (s *Service) agentForUser(ctx context.Context, userID uuid.UUID) (Agent, error) {
	phone, err := s.Phones.PhoneForUser(ctx, userID)
	if err != nil || phone == "" {
		return Agent{}, common.NewAppError("AGENT_NOT_FOUND", "no delivery agent for this account", http.StatusForbidden, err)
	}
	agent, err := s.Agents.GetAgentByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, common.NewAppError("AGENT_NOT_FOUND", "no delivery agent for this account", http.StatusForbidden, nil)
		}
		return Agent{}, fmt.Errorf("delivery: load agent: %w", err)
	}
	if !agent.Verified {
		return Agent{}, common.NewAppError("AGENT_UNVERIFIED", "agent is awaiting verification", http.StatusForbidden, nil)
	}
	return agent, nil
}

// AssignedOrders lists the paid orders waiting on the agent.
func (s *Service) AssignedOrders(ctx context.Context, userID uuid.UUID) ([]order.Summary, error) {
	agent, err := s.agentForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := s.Orders.ListAssigned(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("delivery: list assigned: %w", err)
	}
	return orders, nil
}

// Complete marks an assigned order delivered after checking the customer's
// handover code.
func (s *Service) Complete(ctx context.Context, userID, orderID uuid.UUID, otp string) error {
	agent, err := s.agentForUser(ctx, userID)
	if err != nil {
		return err
	}
	expected, assignedTo, err := s.Orders.GetDeliveryOTP(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NotFoundError("order not found")
		}
		return fmt.Errorf("delivery: load handover code: %w", err)
	}
	if !assignedTo.Valid || assignedTo.UUID != agent.ID {
		return common.NewAppError("NOT_ASSIGNED", "order is not assigned to this agent", http.StatusForbidden, nil)
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(otp)) != 1 {
		return common.NewAppError("INVALID_OTP", "handover code does not match", http.StatusUnauthorized, nil)
	}
	changed, err := s.Orders.MarkDelivered(ctx, orderID, s.now())
	if err != nil {
		return fmt.Errorf("delivery: mark delivered: %w", err)
	}
	if !changed {
		return common.NewAppError("INVALID_STATE", "order is not awaiting delivery", http.StatusConflict, nil)
	}
	if obs.DeliveryCompletedTotal != nil {
		obs.DeliveryCompletedTotal.Inc()
	}
	s.emitDelivered(ctx, orderID, agent.ID)
	return nil
}

func (s *Service) emitDelivered(ctx context.Context, orderID, agentID uuid.UUID) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, events.TopicOrderDelivered, orderID, map[string]any{
		"agentId":     agentID,
		"deliveredAt": s.now().UTC(),
	}); err != nil {
		s.Logger.Error().Err(err).Stringer("orderId", orderID).Msg("emit delivery event")
	}
}
