package bot

import (
	"fmt"
	"math/rand"
	"strings"
)

// facts is the shared fun-fact and quote pool for the "fact"/"quote" rule.
var facts = []string{
	"Did you know? Honey never spoils!",
	"“The best way to get started is to quit talking and begin doing.” – Walt Disney",
	"Fun fact: Bananas are berries, but strawberries aren't!",
	"“Keep your face always toward the sunshine—and shadows will fall behind you.” – Walt Whitman",
}

// reactionReply applies the built-in conversational rules so common phrases
// always have a local answer even when the canned table and the generative
// path are unavailable. Rules are checked in order; the first hit wins.
func reactionReply(text string) (string, bool) {
	msg := strings.ToLower(text)

	switch {
	case strings.Contains(msg, "love") || strings.Contains(msg, "❤️"):
		return "Aww, sending you lots of ❤️!", true
	case strings.Contains(msg, "happy") || strings.Contains(msg, "good job"):
		return "😊 That makes me happy too!", true
	case strings.Contains(msg, "sad") || strings.Contains(msg, "cry"):
		return "Oh no! 😢 If you want to talk, I'm here.", true
	case strings.Contains(msg, "fact") || strings.Contains(msg, "quote"):
		return facts[rand.Intn(len(facts))], true
	case strings.Contains(msg, "remind"):
		return "Don't forget to drink water and take a short break! 💧🕒", true
	case strings.Contains(msg, "mood:"):
		return moodReply(msg), true
	case strings.Contains(msg, "my name is"):
		return nameReply(msg), true
	case strings.Contains(msg, "how are you"):
		return "I'm just a bot, but I'm doing well! How about you?", true
	case strings.Contains(msg, "hi") || strings.Contains(msg, "hello"):
		return "Hello! What's your name?", true
	case strings.Contains(msg, "good") || strings.Contains(msg, "fine") || strings.Contains(msg, "great"):
		return "That's wonderful to hear!", true
	case strings.Contains(msg, "bad") || strings.Contains(msg, "not well"):
		return "I'm sorry to hear that. If you want to talk, I'm here!", true
	case strings.Contains(msg, "bye"):
		return "Goodbye! Have a great day!", true
	}

	return "", false
}

func moodReply(msg string) string {
	_, after, _ := strings.Cut(msg, "mood:")
	mood := strings.TrimSpace(after)
	if mood == "" {
		return "Please tell me your mood after 'mood:'. For example, 'mood: happy'"
	}
	return fmt.Sprintf("Mood saved: %q. Remember, it's okay to feel how you feel!", mood)
}

func nameReply(msg string) string {
	_, after, _ := strings.Cut(msg, "my name is")
	name := strings.TrimSpace(after)
	if name != "" {
		name = strings.Fields(name)[0]
		return fmt.Sprintf("Nice to meet you, %s! How are you today?", name)
	}
	return "Nice to meet you! How are you today?"
}
