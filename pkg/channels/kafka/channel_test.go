package kafka_test

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/taskpipe/pkg/channels/kafka"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := kafka.CreateChannel(watermill.NopLogger{}, "taskpipe", nil)
	require.ErrorIs(t, err, kafka.ErrNoBrokers)

	_, _, err = kafka.CreateChannel(watermill.NopLogger{}, "taskpipe", []string{""})
	require.ErrorIs(t, err, kafka.ErrNoBrokers)
}
