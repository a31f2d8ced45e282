package conversation_test

import (
	"context"
	"testing"

	"github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/conversation"
)

func TestServiceGetConversation(t *testing.T) {
	svc := conversation.NewService()
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	got, err := svc.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}
	if got.ID != conv.ID {
		t.Fatalf("unexpected conversation ID: got %s want %s", got.ID, conv.ID)
	}
}

func TestServiceGetConversationNotFound(t *testing.T) {
	svc := conversation.NewService()

	if _, err := svc.GetConversation(context.Background(), "missing"); err != conversation.ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestServiceAppendAndTranscript(t *testing.T) {
	svc := conversation.NewService()
	ctx := context.Background()

	conv, _ := svc.CreateConversation(ctx)
	first, err := svc.Append(ctx, chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Append err: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be set: %+v", first)
	}
	if _, err := svc.Append(ctx, chat.Message{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	transcript, err := svc.Transcript(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 2 || transcript[0].Content != "hi" || transcript[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}

	transcript[0].Content = "mutated"
	again, _ := svc.Transcript(ctx, conv.ID)
	if again[0].Content != "hi" {
		t.Fatal("transcript must be a copy")
	}
}

func TestServiceAppendValidation(t *testing.T) {
	svc := conversation.NewService()
	ctx := context.Background()
	conv, _ := svc.CreateConversation(ctx)

	if _, err := svc.Append(ctx, chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "  "}); err != conversation.ErrEmptyContent {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.Append(ctx, chat.Message{ConversationID: conv.ID, Role: "system", Content: "x"}); err != conversation.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.Append(ctx, chat.Message{ConversationID: "nope", Role: chat.RoleUser, Content: "x"}); err != conversation.ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
