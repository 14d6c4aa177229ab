package servicebustransport

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToServiceBus(t *testing.T) {
	msg := loader.Message{
		ID:      "id",
		Type:    loader.ResetStatistics,
		Headers: map[string]string{loader.HeaderSender: "qload"},
		Body:    []byte(`{}`),
	}
	m := toServiceBus(msg, "application/json")
	require.NotNil(t, m.MessageID)
	assert.Equal(t, "id", *m.MessageID)
	assert.Equal(t, loader.ResetStatistics, *m.Subject)
	assert.Equal(t, "application/json", *m.ContentType)
	assert.Equal(t, map[string]any{loader.HeaderSender: "qload"}, m.ApplicationProperties)
	assert.Equal(t, []byte(`{}`), m.Body)
}

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		err       error
		transient bool
	}{
		"timeout":         {&azservicebus.Error{Code: azservicebus.CodeTimeout}, true},
		"connection lost": {&azservicebus.Error{Code: azservicebus.CodeConnectionLost}, true},
		"unauthorized":    {&azservicebus.Error{Code: azservicebus.CodeUnauthorizedAccess}, false},
		"other":           {errors.New("x"), false},
	}
	for name, test := range tests {
		err := classify(test.err)
		require.Error(t, err, name)
		assert.Equal(t, test.transient, loader.IsTransient(err), name)
	}
	assert.NoError(t, classify(nil))
}

func TestQueryScalar_unsupported(t *testing.T) {
	tr := &Transport{}
	_, err := tr.QueryScalar(context.Background(), "active")
	assert.EqualError(t, err, `unsupported query "active"`)
}

func TestDefaults(t *testing.T) {
	tr := &Transport{}
	probes := tr.DefaultProbes("orders")
	require.Len(t, probes, 2)
	assert.Equal(t, "active orders", probes[0].Query)
	assert.Equal(t, "deadletter orders", probes[1].Query)
	assert.Empty(t, tr.DefaultResetQuery())
}

func TestStart_requiresConnectionString(t *testing.T) {
	tr := New().(*Transport)
	err := tr.Start(context.Background(), map[string]interface{}{})
	assert.EqualError(t, err, "connection string is required, set QLOAD_CONNECTION_STRING")
	assert.NoError(t, tr.Stop(context.Background()))
}
