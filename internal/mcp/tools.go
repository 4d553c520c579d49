package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/securestore/securestore/pkg/vault"
)

// SecretListInput represents input for the secret_list tool.
type SecretListInput struct{}

// SecretListOutput represents output for the secret_list tool.
type SecretListOutput struct {
	Names []string `json:"names"`
}

// SecretExistsInput represents input for the secret_exists tool.
type SecretExistsInput struct {
	Name string `json:"name"`
}

// SecretExistsOutput represents output for the secret_exists tool.
type SecretExistsOutput struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name"`
}

// SecretGetMaskedInput represents input for the secret_get_masked tool.
type SecretGetMaskedInput struct {
	Name string `json:"name"`
}

// SecretGetMaskedOutput represents output for the secret_get_masked
// tool.
type SecretGetMaskedOutput struct {
	Name        string `json:"name"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

// handleSecretList handles the secret_list tool call.
func (s *Server) handleSecretList(_ context.Context, _ *mcp.CallToolRequest, _ SecretListInput) (*mcp.CallToolResult, SecretListOutput, error) {
	return nil, SecretListOutput{Names: s.store.Keys()}, nil
}

// handleSecretExists handles the secret_exists tool call.
func (s *Server) handleSecretExists(_ context.Context, _ *mcp.CallToolRequest, input SecretExistsInput) (*mcp.CallToolResult, SecretExistsOutput, error) {
	if input.Name == "" {
		return nil, SecretExistsOutput{}, errors.New("name is required")
	}
	return nil, SecretExistsOutput{
		Exists: s.store.Has(input.Name),
		Name:   input.Name,
	}, nil
}

// handleSecretGetMasked handles the secret_get_masked tool call.
func (s *Server) handleSecretGetMasked(_ context.Context, _ *mcp.CallToolRequest, input SecretGetMaskedInput) (*mcp.CallToolResult, SecretGetMaskedOutput, error) {
	if input.Name == "" {
		return nil, SecretGetMaskedOutput{}, errors.New("name is required")
	}

	value, err := s.store.GetBytes(input.Name)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return nil, SecretGetMaskedOutput{}, fmt.Errorf("secret %q not found", input.Name)
		}
		return nil, SecretGetMaskedOutput{}, fmt.Errorf("failed to get secret: %w", err)
	}

	return nil, SecretGetMaskedOutput{
		Name:        input.Name,
		MaskedValue: maskValue(value),
		ValueLength: len(value),
	}, nil
}

// maskValue masks a secret value, keeping only a short suffix visible on
// longer values so their format stays recognizable.
func maskValue(value []byte) string {
	length := len(value)
	if length == 0 {
		return ""
	}

	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(value[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(value[length-4:])
	}
}
