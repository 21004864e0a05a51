package pktline_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/forgectl/gitcore/format/pktline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePacketReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacket(&buf, []byte("hello"))
	require.NoError(t, err)

	status, data, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, pktline.Status(5), status)
	assert.Equal(t, []byte("hello"), data)
}

func TestWriteEmptyDataFails(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacket(&buf, []byte{})
	assert.ErrorIs(t, err, pktline.ErrEmptyPayload)
}

func TestFlushDelimResponseEndSentinels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteFlush(&buf))
	require.NoError(t, pktline.WriteDelim(&buf))
	require.NoError(t, pktline.WriteResponseEnd(&buf))

	s1, _, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, pktline.Flush, s1)

	s2, _, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, pktline.Delim, s2)

	s3, _, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, pktline.ResponseEnd, s3)
}

func TestWriterBinaryModeExactBytes(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf, pktline.Binary)
	_, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("world\n"))
	require.NoError(t, err)
	require.NoError(t, w.Terminate(pktline.TerminatorFlush))

	assert.Equal(t, "000ahello\n000aworld\n0000", buf.String())
}

func TestWriterSplitsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf, pktline.Binary)
	payload := bytes.Repeat([]byte{'x'}, pktline.MaxDataLen+10)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Terminate(pktline.TerminatorFlush))

	r := pktline.NewReader(&buf, pktline.StopOnFlush)
	var got []byte
	for {
		status, data, err := r.ReadLine()
		require.NoError(t, err)
		if status == pktline.Flush {
			break
		}
		got = append(got, data...)
	}
	assert.Equal(t, payload, got)
}

func TestReaderPeekDoesNotConsume(t *testing.T) {
	var buf bytes.Buffer
	_, _ = pktline.WritePacket(&buf, []byte("abc"))
	r := pktline.NewReader(&buf, pktline.StopNever)

	_, data1, err := r.PeekLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data1)

	_, data2, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data2)
}

func TestSidebandDemuxer(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	var buf bytes.Buffer
	mux := pktline.NewMuxer(pktline.Sideband64k, &buf)
	_, _ = mux.WriteChannel(pktline.BandData, expected[0:8])
	_, _ = mux.WriteChannel(pktline.BandProgress, []byte("FOO\n"))
	_, _ = mux.WriteChannel(pktline.BandData, expected[8:16])
	_, _ = mux.WriteChannel(pktline.BandData, expected[16:26])
	require.NoError(t, pktline.WriteFlush(&buf))

	var progress bytes.Buffer
	d := pktline.NewDemuxer(pktline.Sideband64k, &buf)
	d.Progress = &progress

	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	assert.Equal(t, expected, content)
	assert.Equal(t, "FOO\n", progress.String())
}

func TestSidebandDemuxerErrBand(t *testing.T) {
	var buf bytes.Buffer
	mux := pktline.NewMuxer(pktline.Sideband64k, &buf)
	_, _ = mux.WriteChannel(pktline.BandError, []byte("something broke\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	d := pktline.NewDemuxer(pktline.Sideband64k, &buf)
	content := make([]byte, 8)
	_, err := d.Read(content)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "something broke")
}

func TestSidebandDemuxerErrPrefixOnDataBand(t *testing.T) {
	var buf bytes.Buffer
	mux := pktline.NewMuxer(pktline.Sideband64k, &buf)
	_, _ = mux.WriteChannel(pktline.BandData, []byte("ERR some message"))
	require.NoError(t, pktline.WriteFlush(&buf))

	d := pktline.NewDemuxer(pktline.Sideband64k, &buf)
	content := make([]byte, 8)
	_, err := d.Read(content)
	require.Error(t, err)

	var errLine *pktline.ErrorLine
	require.ErrorAs(t, err, &errLine)
	assert.Equal(t, "some message", errLine.Text)
}

func TestPlainReaderSurfacesErrPrefix(t *testing.T) {
	var buf bytes.Buffer
	_, _ = pktline.WritePacket(&buf, []byte("ERR some message"))
	require.NoError(t, pktline.WriteFlush(&buf))

	r := pktline.NewReader(&buf, pktline.StopOnFlush)
	plain := r.AsPlainReader()

	content := make([]byte, 32)
	_, err := plain.Read(content)
	require.Error(t, err)

	var errLine *pktline.ErrorLine
	require.ErrorAs(t, err, &errLine)
	assert.Equal(t, "some message", errLine.Text)
}

func TestMuxerWriteChannelExactBytes(t *testing.T) {
	var buf bytes.Buffer
	m := pktline.NewMuxer(pktline.Sideband64k, &buf)

	n, err := m.WriteChannel(pktline.BandData, bytes.Repeat([]byte{'D'}, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = m.WriteChannel(pktline.BandProgress, bytes.Repeat([]byte{'P'}, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, "0009\x01DDDD0009\x02PPPP", buf.String())
}
