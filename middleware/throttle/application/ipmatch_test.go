package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIP(t *testing.T) {
	testCases := []struct {
		desc     string
		patterns []string
		ip       string
		exp      bool
	}{
		{desc: "exact", patterns: []string{"1.2.3.4"}, ip: "1.2.3.4", exp: true},
		{desc: "exact miss", patterns: []string{"1.2.3.4"}, ip: "1.2.3.5", exp: false},
		{desc: "cidr v4", patterns: []string{"10.0.0.0/8"}, ip: "10.200.1.7", exp: true},
		{desc: "cidr v4 miss", patterns: []string{"10.0.0.0/8"}, ip: "11.0.0.1", exp: false},
		{desc: "cidr v6", patterns: []string{"2001:db8::/32"}, ip: "2001:db8:1::5", exp: true},
		{desc: "v4 mapped in v6", patterns: []string{"192.168.0.0/16"}, ip: "::ffff:192.168.1.1", exp: true},
		{desc: "trailing wildcard", patterns: []string{"192.168.*"}, ip: "192.168.44.1", exp: true},
		{desc: "trailing wildcard miss", patterns: []string{"192.168.*"}, ip: "192.169.0.1", exp: false},
		{desc: "inner wildcard", patterns: []string{"10.*.*.1"}, ip: "10.9.8.1", exp: true},
		{desc: "inner wildcard miss", patterns: []string{"10.*.*.1"}, ip: "10.9.8.2", exp: false},
		{desc: "wildcard never matches v6", patterns: []string{"*"}, ip: "::1", exp: false},
		{desc: "range", patterns: []string{"192.168.0.10-192.168.0.20"}, ip: "192.168.0.15", exp: true},
		{desc: "range upper bound", patterns: []string{"192.168.0.10-192.168.0.20"}, ip: "192.168.0.20", exp: true},
		{desc: "range miss", patterns: []string{"192.168.0.10-192.168.0.20"}, ip: "192.168.0.21", exp: false},
		{desc: "malformed pattern is no match", patterns: []string{"10.0.0.0/99", "300.1.*", "nope"}, ip: "10.0.0.1", exp: false},
		{desc: "malformed pattern does not hide valid one", patterns: []string{"garbage", "10.0.0.1"}, ip: "10.0.0.1", exp: true},
		{desc: "malformed ip", patterns: []string{"10.0.0.0/8"}, ip: "not-an-ip", exp: false},
		{desc: "empty ip", patterns: []string{"10.0.0.0/8"}, ip: "", exp: false},
		{desc: "no patterns", patterns: nil, ip: "10.0.0.1", exp: false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.exp, MatchIP(tc.patterns, tc.ip))

			m, _ := CompileIPPatterns(tc.patterns)
			assert.Equal(t, tc.exp, m.Match(tc.ip))
		})
	}
}

func TestCompileIPPatterns_ReportsMalformed(t *testing.T) {
	m, errList := CompileIPPatterns([]string{"10.0.0.0/8", "10.0.0.0/99", "", "1.2.3.4-1.2.3.1", "1.2.3.4"})
	require.Len(t, errList, 3)
	assert.True(t, m.Match("10.1.1.1"))
	assert.True(t, m.Match("1.2.3.4"))
}
