package signals

var highPriorityKeywords = []string{
	"urgent", "critical", "emergency", "down", "not working",
	"broken", "crashed", "immediately", "asap", "production",
}

var mediumPriorityKeywords = []string{
	"soon", "important", "need", "required", "issue",
	"problem", "help", "support",
}

// autoResolvePatterns is evaluated top to bottom. Keywords are plain
// substrings, so broad entries near the top shadow later ones.
var autoResolvePatterns = []Pattern{
	{
		Name:     "greeting",
		Keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"},
		Response: "Hello! I'm here to help with your IT support needs. Please describe your issue and I'll assist you or create a support ticket.",
	},
	{
		Name:     "thanks",
		Keywords: []string{"thank you", "thanks", "thx", "appreciate"},
		Response: "You're welcome! Is there anything else I can help you with?",
	},
	{
		Name:     "test",
		Keywords: []string{"test", "testing", "check"},
		Response: "System is working properly! How can I assist you with your IT support needs?",
	},
	{
		Name:     "password_reset",
		Keywords: []string{"reset password", "forgot password", "password reset", "change password"},
		Response: "I can help you reset your password. Please visit the self-service portal or contact your system administrator.",
	},
	{
		Name:     "vpn_setup",
		Keywords: []string{"vpn setup", "vpn install", "vpn connection", "vpn download"},
		Response: "For VPN setup, please download the client from the VPN downloads page and follow the installation guide. If you need further assistance, I can create a support ticket.",
	},
	{
		Name:     "email_mobile",
		Keywords: []string{"email on mobile", "mobile email", "phone email setup"},
		Response: "For mobile email configuration, please check our setup guide in the knowledge base. I can provide step-by-step instructions or create a support ticket if needed.",
	},
}

var intentPatterns = []struct {
	intent Intent
	expr   string
}{
	{IntentGreeting, `\b(hi|hello|hey|good (morning|afternoon|evening))\b`},
	{IntentFarewell, `\b(bye|goodbye|see you|thanks|thank you)\b`},
	{IntentQuestionAboutBot, `\b(who are you|what (do you do|can you do)|help me understand)\b`},
	{IntentStatusInquiry, `\b(how are you|what's up|how's it going)\b`},
	{IntentPasswordIssue, `\b(password|forgot password|reset password|can't log in|login issue)\b`},
	{IntentNetworkIssue, `\b(internet|wifi|network|connection|vpn|slow)\b`},
	{IntentHardwareIssue, `\b(computer|laptop|printer|mouse|keyboard|screen|monitor)\b`},
	{IntentSoftwareIssue, `\b(software|application|program|install|update|error)\b`},
	{IntentEmailIssue, `\b(email|outlook|gmail|mail|smtp)\b`},
	{IntentAccessIssue, `\b(access|permission|folder|drive|file)\b`},
}

var itKeywords = []string{
	"password", "vpn", "email", "network", "computer", "laptop", "software",
	"hardware", "install", "error", "problem", "issue", "help", "support",
	"not working", "broken", "access", "login", "wifi", "internet", "printer",
}
