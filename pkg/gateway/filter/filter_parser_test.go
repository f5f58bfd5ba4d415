package filter_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/gateway/filter"
)

func TestParseScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string

		expectedOK    bool
		expectedScope *data.Scope
	}{
		{
			name:          "account request",
			path:          "/v1/AUTH_test",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test"},
		},
		{
			name:          "container request",
			path:          "/v1/AUTH_test/photos",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test", Container: "photos"},
		},
		{
			name:          "container request with trailing slash",
			path:          "/v1/AUTH_test/photos/",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test", Container: "photos"},
		},
		{
			name:          "object request",
			path:          "/v1/AUTH_test/photos/cat.jpg",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test", Container: "photos", Object: "cat.jpg"},
		},
		{
			name:          "object name with slashes",
			path:          "/v1/AUTH_test/photos/2024/summer/cat.jpg",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test", Container: "photos", Object: "2024/summer/cat.jpg"},
		},
		{
			name:          "trash container object",
			path:          "/v1/AUTH_test/.trash-photos/cat.jpg",
			expectedOK:    true,
			expectedScope: &data.Scope{Account: "AUTH_test", Container: ".trash-photos", Object: "cat.jpg"},
		},
		{
			name:       "service info",
			path:       "/info",
			expectedOK: false,
		},
		{
			name:       "healthcheck",
			path:       "/healthcheck",
			expectedOK: false,
		},
		{
			name:       "wrong version prefix",
			path:       "/v2/AUTH_test/photos",
			expectedOK: false,
		},
		{
			name:       "version only",
			path:       "/v1",
			expectedOK: false,
		},
		{
			name:       "empty account",
			path:       "/v1//photos",
			expectedOK: false,
		},
		{
			name:       "root",
			path:       "/",
			expectedOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scope, ok := filter.ParseScope(tc.path)
			if ok != tc.expectedOK {
				t.Fatalf("ParseScope(%q) ok = %v, want %v", tc.path, ok, tc.expectedOK)
			}
			if !tc.expectedOK {
				return
			}
			if diff := cmp.Diff(tc.expectedScope, scope); diff != "" {
				t.Errorf("ParseScope(%q) mismatch (-want +got):\n%s", tc.path, diff)
			}
		})
	}
}

func TestScopeLevels(t *testing.T) {
	t.Parallel()

	acct := &data.Scope{Account: "a"}
	if !acct.AccountLevel() || acct.ContainerLevel() || acct.ObjectLevel() {
		t.Errorf("account scope misclassified")
	}

	cont := &data.Scope{Account: "a", Container: "c"}
	if cont.AccountLevel() || !cont.ContainerLevel() || cont.ObjectLevel() {
		t.Errorf("container scope misclassified")
	}

	obj := &data.Scope{Account: "a", Container: "c", Object: "o"}
	if obj.AccountLevel() || obj.ContainerLevel() || !obj.ObjectLevel() {
		t.Errorf("object scope misclassified")
	}
}
