package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

func TestComputeKey_Deterministic(t *testing.T) {
	p := &domain.Policy{IPThrottling: true, ClientThrottling: true, EndpointThrottling: true}
	id := domain.NewRequestIdentity("1.2.3.4", "k1", "/a")

	k1 := ComputeKey("", p, id, domain.Minute)
	k2 := ComputeKey("", p, domain.NewRequestIdentity("1.2.3.4", "k1", "/A"), domain.Minute)
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "throttle:minute:"))
	assert.Len(t, k1, len("throttle:minute:")+64)

	assert.True(t, strings.HasPrefix(ComputeKey("rl", p, id, domain.Week), "rl:week:"))
}

func TestComputeKey_SensitiveToEnabledComponents(t *testing.T) {
	all := &domain.Policy{IPThrottling: true, ClientThrottling: true, EndpointThrottling: true}
	base := domain.NewRequestIdentity("1.2.3.4", "k1", "/a")
	key := ComputeKey("", all, base, domain.Second)

	testCases := []struct {
		desc string
		id   domain.RequestIdentity
	}{
		{desc: "ip", id: domain.NewRequestIdentity("1.2.3.5", "k1", "/a")},
		{desc: "client", id: domain.NewRequestIdentity("1.2.3.4", "k2", "/a")},
		{desc: "endpoint", id: domain.NewRequestIdentity("1.2.3.4", "k1", "/b")},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.NotEqual(t, key, ComputeKey("", all, tc.id, domain.Second))
		})
	}

	assert.NotEqual(t, key, ComputeKey("", all, base, domain.Minute))
}

func TestComputeKey_IgnoresDisabledComponents(t *testing.T) {
	p := &domain.Policy{IPThrottling: true}

	a := ComputeKey("", p, domain.NewRequestIdentity("1.2.3.4", "k1", "/a"), domain.Hour)
	b := ComputeKey("", p, domain.NewRequestIdentity("1.2.3.4", "k2", "/b"), domain.Hour)
	assert.Equal(t, a, b)
}

func TestComputeKey_FramingAvoidsCollisions(t *testing.T) {
	p := &domain.Policy{ClientThrottling: true, EndpointThrottling: true}

	a := ComputeKey("", p, domain.RequestIdentity{ClientKey: "a;endpoint=1:b", Endpoint: "c"}, domain.Day)
	b := ComputeKey("", p, domain.RequestIdentity{ClientKey: "a", Endpoint: "b;endpoint=1:c"}, domain.Day)
	assert.NotEqual(t, a, b)
}
