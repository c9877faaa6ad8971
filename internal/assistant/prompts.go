package assistant

import "fmt"

const (
	SystemVideoChat = "You are a helpful AI assistant that can analyze video content and answer questions about what's happening in the video. Provide clear, concise, and relevant answers."
	SystemFrame     = "You are a helpful AI assistant analyzing a video frame. A user has raised their hand and wants to know about what's happening in this video frame. Provide a brief, helpful explanation."

	FramePrompt = "Please analyze this video frame and provide a brief explanation of what's happening:"

	FrameMaxTokens = 200
	ChatMaxTokens  = 500
)

// QuestionPrompt 在附带截图时把用户问题包装成针对当前画面的提问。
func QuestionPrompt(question string, withScreenshot bool) string {
	if !withScreenshot {
		return question
	}
	return fmt.Sprintf("Based on this video screenshot and the user's question: %q, please provide a helpful and relevant answer. The screenshot shows the current frame of the video being watched.", question)
}
