package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBCommandRequiresAnAction(t *testing.T) {
	cmd := newDBCmd()
	cmd.SetArgs(nil)
	err := cmd.Execute()
	require.Error(t, err)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitMisuse, ee.code)
}

func TestCollectCommandRequiresWorkspaceAndRoot(t *testing.T) {
	workspace = ""
	cmd := newCollectCmd(protocolLocal)
	cmd.SetArgs(nil)
	err := cmd.Execute()
	require.Error(t, err)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitMisuse, ee.code)
}

func TestReviewAndReportStubsSucceed(t *testing.T) {
	var out bytes.Buffer

	review := newReviewCmd()
	review.SetOut(&out)
	require.NoError(t, review.Execute())

	report := newReportCmd()
	report.SetOut(&out)
	require.NoError(t, report.Execute())
}
