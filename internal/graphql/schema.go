package graphql

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/graphql-go/graphql"

	"address-verifier/internal/auspost"
	"address-verifier/internal/auth"
	"address-verifier/internal/observability"
	"address-verifier/internal/verification"
)

const (
	msgUnauthorized  = "Unauthorized: please log in first."
	msgUpstreamError = "Validation failed due to an upstream error."
)

// AddressValidator is the slice of the auspost validator the resolver needs.
type AddressValidator interface {
	Validate(ctx context.Context, postcode, suburb, state string) (auspost.Result, error)
}

type Resolver struct {
	validator AddressValidator
	store     verification.Store
	logger    *observability.Logger
}

func NewResolver(validator AddressValidator, store verification.Store, logger *observability.Logger) *Resolver {
	return &Resolver{validator: validator, store: store, logger: logger}
}

// ValidateAddress gates on the session, runs the validator and records the
// attempt. Every authenticated attempt is logged exactly once; the log write
// is awaited but its failure never replaces the validation response.
func (r *Resolver) ValidateAddress(p graphql.ResolveParams) (any, error) {
	postcode, _ := p.Args["postcode"].(string)
	suburb, _ := p.Args["suburb"].(string)
	state, _ := p.Args["state"].(string)

	session, ok := auth.SessionFromContext(p.Context)
	if !ok {
		return resultMap(auspost.Result{Success: false, Message: msgUnauthorized}), nil
	}

	entry := verification.Entry{
		Username: session.Username,
		Postcode: normalize(postcode),
		Suburb:   normalize(suburb),
		State:    normalize(state),
	}

	result, err := r.validator.Validate(p.Context, postcode, suburb, state)
	if err != nil {
		detail := err.Error()
		entry.Success = false
		entry.Message = msgUpstreamError
		entry.Error = &detail
		r.record(p.Context, entry)
		return resultMap(auspost.Result{Success: false, Message: detail}), nil
	}

	entry.Success = result.Success
	entry.Message = result.Message
	entry.Lat = result.Lat
	entry.Lng = result.Lng
	r.record(p.Context, entry)

	return resultMap(result), nil
}

func (r *Resolver) record(ctx context.Context, entry verification.Entry) {
	if _, err := r.store.Log(ctx, entry); err != nil {
		sentry.CaptureException(err)
		r.logger.Warn("verification_log_failed", map[string]any{
			"username": entry.Username,
			"error":    err.Error(),
		})
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func resultMap(result auspost.Result) map[string]any {
	out := map[string]any{
		"success": result.Success,
		"message": result.Message,
	}
	if result.Lat != nil {
		out["lat"] = *result.Lat
	}
	if result.Lng != nil {
		out["lng"] = *result.Lng
	}
	return out
}

// NewSchema builds the query schema around the resolver.
func NewSchema(resolver *Resolver) (graphql.Schema, error) {
	validationResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ValidationResult",
		Fields: graphql.Fields{
			"success": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"message": &graphql.Field{Type: graphql.String},
			"lat":     &graphql.Field{Type: graphql.Float},
			"lng":     &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"validateAddress": &graphql.Field{
				Type: graphql.NewNonNull(validationResultType),
				Args: graphql.FieldConfigArgument{
					"postcode": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"suburb":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"state":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: resolver.ValidateAddress,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}
