package provisioning

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindAndExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
		code int
	}{
		{"nil", nil, "", 0},
		{"configuration", &ConfigurationError{Reason: "no keys"}, KindConfiguration, 2},
		{"not found", &NotFoundError{Kind: "ssh key", Field: "name", Value: "x"}, KindNotFound, 3},
		{"provider", &ProviderError{Op: "create droplet", Err: errors.New("422")}, KindProvider, 4},
		{"provisioning", &ProvisioningError{ID: 1, Status: "off"}, KindProvisioning, 5},
		{"wrapped provisioning", fmt.Errorf("create: %w", &ProvisioningError{ID: 1, Err: context.DeadlineExceeded}), KindProvisioning, 5},
		{"provider wrapping not found", &ProviderError{Op: "get droplet", StatusCode: 404, Err: &NotFoundError{Kind: "droplet", Field: "id", Value: "42"}}, KindProvider, 4},
		{"joined", errors.Join(errors.New("disk full"), &ProviderError{Op: "delete droplet", Err: errors.New("500")}), KindProvider, 4},
		{"plain", errors.New("disk full"), KindUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
			if got := ExitCode(tt.err); got != tt.code {
				t.Errorf("ExitCode() = %d, want %d", got, tt.code)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ProviderError{Op: "create droplet", StatusCode: 422, Err: errors.New("invalid size")}, "create droplet failed (HTTP 422): invalid size"},
		{&ProviderError{Op: "list ssh keys", Err: errors.New("eof")}, "list ssh keys failed: eof"},
		{&ProvisioningError{ID: 9, Status: "errored"}, "droplet 9 creation failed with status: errored"},
		{&ProvisioningError{ID: 9, Status: "new", Err: ErrAttemptsExhausted}, `droplet 9 not active (last status "new"): maximum poll attempts reached`},
		{&ConfigurationError{Reason: "bad poll interval"}, "configuration error: bad poll interval"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
