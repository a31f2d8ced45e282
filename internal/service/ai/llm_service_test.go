package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/model/profile"
)

type recordingModel struct {
	input []*schema.Message
}

func (m *recordingModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	return schema.AssistantMessage(fmt.Sprintf("seen %d messages", len(input)), nil), nil
}

func (m *recordingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func history(n int) []chat.Message {
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		out = append(out, chat.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}
	return out
}

func TestServiceRespondBuildsPrompt(t *testing.T) {
	fake := &recordingModel{}
	svc, err := NewServiceWithModel(context.Background(), fake, 4)
	require.NoError(t, err)

	p := profile.Seed()[0]
	reply, err := svc.Respond(context.Background(), &p, history(6), "what now?")
	require.NoError(t, err)

	// system + 4 history + query
	require.Len(t, fake.input, 6)
	assert.Equal(t, "seen 6 messages", reply)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, p.Name)
	assert.Equal(t, "m2", fake.input[1].Content)
	assert.Equal(t, schema.User, fake.input[5].Role)
	assert.Equal(t, "what now?", fake.input[5].Content)
}

func TestBuildHistoryMessagesLimit(t *testing.T) {
	assert.Nil(t, buildHistoryMessages(nil, 10))

	msgs := buildHistoryMessages(history(3), 10)
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
}

func TestEchoResponder(t *testing.T) {
	p := profile.Seed()[0]
	reply, err := EchoResponder{}.Respond(context.Background(), &p, history(3), "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "**Site Assistant**"))
	assert.Contains(t, reply, "#3")
	assert.True(t, strings.HasSuffix(reply, "hello"))
}

func TestBuildSystemPrompt(t *testing.T) {
	p := profile.Seed()[0]
	prompt := BuildSystemPrompt(&p)
	assert.Contains(t, prompt, "You are Site Assistant")
	assert.Contains(t, prompt, p.Rules[0])
	assert.Contains(t, prompt, "bare http(s) URLs")

	assert.Equal(t, widgetFormatHint, BuildSystemPrompt(nil))
}
