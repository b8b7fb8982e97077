package rules

import "github.com/linnemanlabs/deskside/internal/support"

// DefaultTables returns a fresh copy of the built-in rule tables.
func DefaultTables() Tables {
	return Tables{
		AutoResolve: []AutoResolveRule{
			{
				Name:       "password_reset",
				Keywords:   []string{"password reset", "reset password", "forgot password", "password expired"},
				Category:   support.CategoryAccess,
				Resolution: "Password reset instructions sent. Visit https://password.powergrid.in",
			},
			{
				Name:       "vpn_setup",
				Keywords:   []string{"vpn setup", "vpn install", "vpn download", "vpn access"},
				Category:   support.CategoryNetwork,
				Resolution: "VPN setup guide provided. Download from https://vpn.powergrid.in/downloads",
			},
			{
				Name:       "email_mobile",
				Keywords:   []string{"email on mobile", "mobile email setup", "configure email phone"},
				Category:   support.CategorySoftware,
				Resolution: "Email configuration guide sent. Check Knowledge Base for detailed steps.",
			},
		},
		Escalation: EscalationPolicy{
			ThresholdHours: map[support.Priority]float64{
				support.PriorityHigh:   2,
				support.PriorityMedium: 24,
				support.PriorityLow:    72,
			},
			DefaultHours: 72,
			OverrideKeywords: []string{
				"production down", "system down", "critical", "emergency",
				"urgent", "not working", "broken", "crashed",
			},
		},
		Teams: []TeamRule{
			{
				Category: support.CategoryNetwork,
				Team:     "Network Team",
				Keywords: []string{"vpn", "network", "connection", "internet", "wifi", "lan"},
			},
			{
				Category: support.CategoryAccess,
				Team:     "IT Support",
				Keywords: []string{"password", "login", "access", "permission", "authentication", "account"},
			},
			{
				Category: support.CategoryHardware,
				Team:     "Hardware Support",
				Keywords: []string{"laptop", "desktop", "printer", "monitor", "keyboard", "mouse", "hardware"},
			},
			{
				Category: support.CategorySoftware,
				Team:     "Software Licensing",
				Keywords: []string{"software", "application", "install", "license", "program", "app"},
			},
			{
				Category: support.CategoryOther,
				Team:     "General IT Support",
			},
		},
		DefaultTeam: "General IT Support",
		SLA: map[support.Priority]SLA{
			support.PriorityHigh:   {ResponseHours: 1, ResolutionHours: 4, Description: "Critical - Immediate attention required"},
			support.PriorityMedium: {ResponseHours: 4, ResolutionHours: 24, Description: "Important - Resolve within 1 business day"},
			support.PriorityLow:    {ResponseHours: 24, ResolutionHours: 72, Description: "Standard - Resolve within 3 business days"},
		},
	}
}
