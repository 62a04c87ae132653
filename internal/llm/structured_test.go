package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcClient struct {
	completeFunc func(ctx context.Context, system, user string) (string, error)
}

func (f *funcClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.completeFunc(ctx, "", prompt)
}

func (f *funcClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return f.completeFunc(ctx, system, user)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"prose wrapped", `Here you go: {"a":1} hope that helps`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`, false},
		{"no object", `sorry, cannot help`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"go fence", "```go\npackage main\n```", "package main"},
		{"bare fence", "```\nx := 1\n```", "x := 1"},
		{"no fence", "  plain text  ", "plain text"},
		{"prose then fence", "Here:\n```go\nfunc F() {}\n```\nDone.", "func F() {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodeBlock(tt.in))
		})
	}
}

func TestCompleteJSONReasksOnce(t *testing.T) {
	calls := 0
	client := &funcClient{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			calls++
			if calls == 1 {
				return "not json at all", nil
			}
			return `{"intent":"general"}`, nil
		},
	}

	var out struct {
		Intent string `json:"intent"`
	}
	err := CompleteJSON(context.Background(), client, "sys", "user", &out)
	require.NoError(t, err)
	assert.Equal(t, "general", out.Intent)
	assert.Equal(t, 2, calls)
}

func TestCompleteJSONGivesUpAfterRetry(t *testing.T) {
	client := &funcClient{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return "still not json", nil
		},
	}

	var out map[string]any
	err := CompleteJSON(context.Background(), client, "", "user", &out)
	require.Error(t, err)
}

func TestCompleteJSONPropagatesServiceError(t *testing.T) {
	client := &funcClient{
		completeFunc: func(ctx context.Context, system, user string) (string, error) {
			return "", fmt.Errorf("service down")
		},
	}

	var out map[string]any
	err := CompleteJSON(context.Background(), client, "", "user", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")
}
