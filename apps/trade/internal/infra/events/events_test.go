package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"teamtoken.com/apps/trade/internal/domain"
)

func TestMemBroker_FanOut(t *testing.T) {
	b := NewMemBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := b.Subscribe(ctx, []string{"trade:state:W1"})
	require.NoError(t, err)
	c, err := b.Subscribe(ctx, []string{"trade:state:W1", "trade:state:W2"})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "trade:state:W1", []byte("x")))
	require.NoError(t, b.Publish(ctx, "trade:state:W2", []byte("y")))

	assert.Equal(t, Message{Topic: "trade:state:W1", Payload: []byte("x")}, <-a)
	assert.Equal(t, "x", string((<-c).Payload))
	assert.Equal(t, "y", string((<-c).Payload))
}

func TestMemBroker_PublishAfterUnsubscribe(t *testing.T) {
	b := NewMemBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, []string{"t"})
	require.NoError(t, err)

	cancel()
	for range ch {
	}
	// 通道已关闭，再发布不能 panic
	assert.NotPanics(t, func() { _ = b.Publish(context.Background(), "t", []byte("late")) })
}

func TestMemBroker_DropsForSlowSubscriber(t *testing.T) {
	b := NewMemBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, []string{"t"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte{byte(i)}))
	}
	assert.Equal(t, []byte{0}, (<-ch).Payload)
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %v", m)
	default:
	}
}

func TestStatePublisher(t *testing.T) {
	b := NewMemBroker(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, []string{StateTopic("WALLET_X")})
	require.NoError(t, err)

	p := NewStatePublisher(b)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	from := domain.SubmissionState{Phase: domain.PhaseBroadcasting, AttemptID: "a1", Wallet: "WALLET_X"}
	to := domain.SubmissionState{Phase: domain.PhaseConfirmed, AttemptID: "a1", Wallet: "WALLET_X", TxID: "sig", UpdatedAt: at}
	p.OnTransition(ctx, from, to)

	// reset 后的 Idle 仍然发到原钱包的主题
	p.OnTransition(ctx, to, domain.SubmissionState{Phase: domain.PhaseIdle, UpdatedAt: at})

	ev, err := DecodeStateEvent((<-ch).Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseBroadcasting, ev.From)
	assert.Equal(t, to, ev.State)
	assert.True(t, at.Equal(ev.At))

	ev, err = DecodeStateEvent((<-ch).Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseIdle, ev.State.Phase)
}

func TestTopicSubjectMapping(t *testing.T) {
	assert.Equal(t, "trade.state.W1", topicToSubject("trade:state:W1"))
	assert.Equal(t, "trade:state:W1", subjectToTopic("trade.state.W1"))
}

type panicBroker struct{ MemBroker }

func (*panicBroker) Publish(context.Context, string, []byte) error { panic("broker exploded") }

func TestStatePublisher_SurvivesBrokerPanic(t *testing.T) {
	p := NewStatePublisher(&panicBroker{})
	assert.NotPanics(t, func() {
		p.OnTransition(context.Background(),
			domain.SubmissionState{Phase: domain.PhaseIdle},
			domain.SubmissionState{Phase: domain.PhaseBuilding, Wallet: "W1", UpdatedAt: time.Now()},
		)
	})
}
