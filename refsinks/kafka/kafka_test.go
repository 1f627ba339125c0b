package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSaramaConfigAppliesCompressionCodec(t *testing.T) {
	cfg := Config{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "snappy"}
	sc := cfg.saramaConfig()
	assert.Equal(t, sarama.CompressionSnappy, sc.Producer.Compression)
}

func TestSaramaConfigDefaultsToNoCompression(t *testing.T) {
	cfg := Config{Brokers: []string{"localhost:9092"}, Topic: "t"}
	sc := cfg.saramaConfig()
	assert.Equal(t, sarama.CompressionNone, sc.Producer.Compression)
}

func TestSaramaConfigAppliesSASL(t *testing.T) {
	cfg := Config{Brokers: []string{"localhost:9092"}, Topic: "t"}
	cfg.Auth.Enabled = true
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"
	sc := cfg.saramaConfig()
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLTypePlaintext, sc.Net.SASL.Mechanism)
}

func TestNewRejectsMissingBrokersOrTopic(t *testing.T) {
	_, err := New(Config{Topic: "t"}, quietLogger())
	require.Error(t, err)

	_, err = New(Config{Brokers: []string{"localhost:9092"}}, quietLogger())
	require.Error(t, err)
}
