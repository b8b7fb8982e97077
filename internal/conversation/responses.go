package conversation

import (
	"fmt"

	"github.com/linnemanlabs/deskside/internal/signals"
)

var firstTimeResponses = map[signals.Intent]string{
	signals.IntentGreeting:         "Hello! I'm your AI IT support assistant. I can help you with technical issues, search our knowledge base, or create support tickets. What's on your mind?",
	signals.IntentStatusInquiry:    "I'm doing great, thank you! I'm here to help with your IT support needs. What can I assist you with?",
	signals.IntentQuestionAboutBot: "I'm an AI assistant specialized in IT support for POWERGRID. I can help resolve common issues, search our knowledge base, and create tickets for complex problems. How can I help you today?",
}

const firstTimeDefault = "Hello! I'm your IT support assistant. How can I help you today?"

var returningResponses = map[signals.Intent]string{
	signals.IntentFarewell:         "You're welcome! Reach out any time something else comes up.",
	signals.IntentStatusInquiry:    "Still here and ready to help. What can I do for you?",
	signals.IntentQuestionAboutBot: firstTimeResponses[signals.IntentQuestionAboutBot],
}

const returningDefault = "How else can I help you today?"

// GenerateContextualResponse picks a reply for a conversational intent. A
// sender without an active session gets a first-time reply; a returning
// greeting acknowledges tickets opened in the session.
func (s *Store) GenerateContextualResponse(sender string, intent signals.Intent) string {
	sess, ok := s.Get(sender)
	if !ok {
		if r, ok := firstTimeResponses[intent]; ok {
			return r
		}
		return firstTimeDefault
	}

	if intent == signals.IntentGreeting {
		if n := len(sess.Tickets); n > 0 {
			return fmt.Sprintf("Welcome back! I see you've created %d tickets recently. How can I help you today?", n)
		}
		return "Hello again! What can I help you with today?"
	}
	if r, ok := returningResponses[intent]; ok {
		return r
	}
	return returningDefault
}
