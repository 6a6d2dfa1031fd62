package aws

import "context"

// MockClient is a test double for the Client interface.
type MockClient struct {
	Identity    *CallerIdentity
	IdentityErr error
	Allowed     map[string]bool  // action → decision
	AccessErr   map[string]error // action → simulation failure

	// Track calls
	Checked []string // "action resource"
}

// NewMockClient creates a MockClient that allows nothing.
func NewMockClient() *MockClient {
	return &MockClient{
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		Allowed:   make(map[string]bool),
		AccessErr: make(map[string]error),
	}
}

func (m *MockClient) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	if m.IdentityErr != nil {
		return nil, m.IdentityErr
	}
	return m.Identity, nil
}

func (m *MockClient) CheckAccess(_ context.Context, action, resource string) (bool, error) {
	m.Checked = append(m.Checked, action+" "+resource)
	if err := m.AccessErr[action]; err != nil {
		return false, err
	}
	return m.Allowed[action], nil
}
