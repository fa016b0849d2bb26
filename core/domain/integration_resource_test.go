package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseResourceType(t *testing.T) {
	assert.Equal(t, ResourceVideo, ParseResourceType(" Video "))
	assert.Equal(t, ResourceDocumentation, ParseResourceType("DOCUMENTATION"))
	assert.Equal(t, ResourceOther, ParseResourceType("blogpost"))
	assert.Equal(t, ResourceOther, ParseResourceType(""))
}

func TestParseResourceCategory(t *testing.T) {
	assert.Equal(t, CategoryPersonalDevelopment, ParseResourceCategory("Personal Development"))
	assert.Equal(t, CategoryPersonalDevelopment, ParseResourceCategory("personal-development"))
	assert.Equal(t, CategoryOther, ParseResourceCategory("cooking"))
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("Gmail")
	assert.True(t, ok)
	assert.Equal(t, ProviderGoogle, p)

	_, ok = ParseProvider("outlook")
	assert.False(t, ok)
}

func TestProviderConnection_Status(t *testing.T) {
	now := time.Now()
	conn := &ProviderConnection{Provider: ProviderSlack, AccessToken: "xoxb", AccountID: "T1", ConnectedAt: now}

	st := conn.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "T1", st.AccountID)

	conn.AccessToken = ""
	assert.False(t, conn.Status().Connected)
	assert.Empty(t, conn.Status().AccountID)
}

func TestProviderConnection_ExpiresWithin(t *testing.T) {
	now := time.Now()
	soon := now.Add(2 * time.Minute)
	later := now.Add(time.Hour)

	assert.True(t, (&ProviderConnection{TokenExpiry: &soon}).ExpiresWithin(now, 5*time.Minute))
	assert.False(t, (&ProviderConnection{TokenExpiry: &later}).ExpiresWithin(now, 5*time.Minute))
	assert.False(t, (&ProviderConnection{}).ExpiresWithin(now, 5*time.Minute))
}

func TestClampHistoryLimit(t *testing.T) {
	assert.Equal(t, 1, ClampHistoryLimit(0))
	assert.Equal(t, 1, ClampHistoryLimit(-5))
	assert.Equal(t, 42, ClampHistoryLimit(42))
	assert.Equal(t, MaxHistoryLimit, ClampHistoryLimit(1000))
}
