package codec

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

func TestLengthDelimitedFramer(t *testing.T) {
	f := &LengthDelimitedFramer{}
	var buf []byte
	buf = append(buf, 0, 0, 0, 3)
	buf = append(buf, 'a', 'b', 'c')
	buf = append(buf, 0, 0, 0, 2) // incomplete second frame
	buf = append(buf, 'x')

	frames, rem, err := f.Scan(buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "abc", string(frames[0]))
	assert.Equal(t, 5, len(rem))
}

func TestNewlineDelimitedFramer(t *testing.T) {
	f := &NewlineDelimitedFramer{}
	frames, rem, err := f.Scan([]byte("one\r\ntwo\nthre"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "one", string(frames[0]))
	assert.Equal(t, "two", string(frames[1]))
	assert.Equal(t, "thre", string(rem))
}

func TestOctetCountingFramer(t *testing.T) {
	f := &OctetCountingFramer{}
	frames, rem, err := f.Scan([]byte("5 hello6 world!"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "hello", string(frames[0]))
	assert.Equal(t, "world!", string(frames[1]))
	assert.Equal(t, "", string(rem))
}

func TestJSONDeserializer(t *testing.T) {
	d := &JSONDeserializer{}
	events, err := d.Parse([]byte(`{"message":"hi","n":3}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	v, ok := events[0].Get(value.ParsePath("message"))
	require.True(t, ok)
	s, _ := v.StringValue()
	assert.Equal(t, "hi", s)
}

func TestJSONSerializerRendersObjectBody(t *testing.T) {
	body := value.Object(map[string]value.Value{"a": value.Int(1)})
	le := event.NewLogEvent(body)
	ev := event.NewLog(le, event.NewMetadata("", ""))

	ser := JSONSerializer{}
	b, err := ser.Serialize(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))
}

func TestEncoderGzipRoundTrip(t *testing.T) {
	body := value.Object(map[string]value.Value{"a": value.Int(1)})
	arr, err := event.NewArray([]event.Event{event.NewLog(event.NewLogEvent(body), event.NewMetadata("", ""))})
	require.NoError(t, err)

	enc := &Encoder{Serializer: JSONSerializer{}, Encoding: EncodingGzip}
	out, err := enc.Encode(arr)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	gr, err := gzip.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, string(decompressed))
}

func TestEncoderLZ4RoundTrip(t *testing.T) {
	body := value.Object(map[string]value.Value{"a": value.Int(1)})
	arr, err := event.NewArray([]event.Event{event.NewLog(event.NewLogEvent(body), event.NewMetadata("", ""))})
	require.NoError(t, err)

	enc := &Encoder{Serializer: JSONSerializer{}, Encoding: EncodingLZ4}
	out, err := enc.Encode(arr)
	require.NoError(t, err)
	assert.Equal(t, "lz4", enc.Encoding.HeaderValue())

	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(out)))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, string(decompressed))
}
