// Package secured answers policy-scoped sales-data queries. Every query
// passes through the rego policy first; the policy decides whether the
// caller's role may see the requested region and which region the data
// lookup is actually scoped to.
package secured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/telagent/gateway/internal/domain"
	"github.com/telagent/gateway/policy"
)

// SalesStore is the slice of the repository the secured service needs.
type SalesStore interface {
	TopProduct(ctx context.Context, region string) (product string, units int, found bool, err error)
	ProductRevenue(ctx context.Context, product, region string) (revenue float64, found bool, err error)
}

// Service gates sales-data lookups behind the access policy.
type Service struct {
	store  SalesStore
	engine *policy.Engine
}

// New creates the secured-data service.
func New(store SalesStore, engine *policy.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// Query evaluates the policy for (role, requested region) and, when
// allowed, runs the data lookup scoped to the policy's effective region.
func (s *Service) Query(ctx context.Context, role domain.Role, q domain.SecuredQuery) (*domain.SecuredResult, error) {
	decision, err := s.engine.Evaluate(ctx, map[string]interface{}{
		"role":             string(role),
		"requested_region": q.RequestedRegion,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allow {
		answer := "Access denied: " + decision.Reason + "."
		return &domain.SecuredResult{
			Answer:   answer,
			AnswerMD: answer,
			Denied:   true,
		}, nil
	}

	switch q.Operation {
	case domain.OpPopularProduct:
		return s.popularProduct(ctx, decision.Region)
	case domain.OpProductRevenue:
		return s.productRevenue(ctx, q.Product, decision.Region)
	default:
		return nil, &domain.ValidationError{Reason: "unknown operation " + q.Operation}
	}
}

func (s *Service) popularProduct(ctx context.Context, region string) (*domain.SecuredResult, error) {
	product, units, found, err := s.store.TopProduct(ctx, region)
	if err != nil {
		return nil, err
	}
	if !found {
		answer := "No sales data found" + regionSuffix(region) + "."
		return &domain.SecuredResult{Answer: answer, AnswerMD: answer}, nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"Product": product,
		"Units":   units,
		"Region":  region,
	})
	if err != nil {
		return nil, err
	}
	answer := fmt.Sprintf("The most popular product%s is %s with %d units sold.", regionSuffix(region), product, units)
	answerMD := fmt.Sprintf("The most popular product%s is **%s** with **%d** units sold.", regionSuffix(region), product, units)
	return &domain.SecuredResult{Answer: answer, AnswerMD: answerMD, Data: data}, nil
}

func (s *Service) productRevenue(ctx context.Context, product, region string) (*domain.SecuredResult, error) {
	revenue, found, err := s.store.ProductRevenue(ctx, product, region)
	if err != nil {
		return nil, err
	}

	subject := "all products"
	if product != "" {
		subject = product
	}
	if !found {
		answer := fmt.Sprintf("No revenue data found for %s%s.", subject, regionSuffix(region))
		return &domain.SecuredResult{Answer: answer, AnswerMD: answer}, nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"Product": product,
		"Revenue": revenue,
		"Region":  region,
	})
	if err != nil {
		return nil, err
	}
	answer := fmt.Sprintf("Total revenue for %s%s is %.2f.", subject, regionSuffix(region), revenue)
	answerMD := fmt.Sprintf("Total revenue for **%s**%s is **%.2f**.", subject, regionSuffix(region), revenue)
	return &domain.SecuredResult{Answer: answer, AnswerMD: answerMD, Data: data}, nil
}

func regionSuffix(region string) string {
	if strings.TrimSpace(region) == "" {
		return ""
	}
	return " in " + region
}
