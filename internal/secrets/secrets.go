// Package secrets resolves chat credentials and routing from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrEmptyParameter is returned when a parameter exists but carries no value.
var ErrEmptyParameter = errors.New("parameter has no value")

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver reads decrypted parameters.
type Resolver struct {
	client SSMAPI
}

// NewResolver creates a Resolver backed by client.
func NewResolver(client SSMAPI) *Resolver {
	return &Resolver{client: client}
}

// Parameter returns the decrypted value of the named parameter.
func (r *Resolver) Parameter(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get ssm parameter %s: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm parameter %s: %w", name, ErrEmptyParameter)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Credentials are the chat settings that may live in SSM.
type Credentials struct {
	BotToken   string
	RoutesJSON string
}

// Resolve fills in the bot token and routing JSON. A value already present in
// current wins over its SSM parameter; empty parameter names are skipped.
func (r *Resolver) Resolve(ctx context.Context, current Credentials, tokenParam, routesParam string) (Credentials, error) {
	out := current
	if out.BotToken == "" && tokenParam != "" {
		token, err := r.Parameter(ctx, tokenParam)
		if err != nil {
			return Credentials{}, err
		}
		out.BotToken = token
		slog.Info("Loaded Slack bot token from SSM", "parameter", tokenParam)
	}
	if out.RoutesJSON == "" && routesParam != "" {
		routes, err := r.Parameter(ctx, routesParam)
		if err != nil {
			return Credentials{}, err
		}
		out.RoutesJSON = routes
		slog.Info("Loaded account routing from SSM", "parameter", routesParam)
	}
	return out, nil
}
