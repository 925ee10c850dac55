package view

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomsPage_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := RoomsPage(RoomsPageData{GeneratedAt: time.Unix(0, 0)}).Render(context.Background(), &buf)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No active rooms")
	assert.Contains(t, buf.String(), "0 rooms, 0 connections")
}

func TestRoomsPage_Rows(t *testing.T) {
	var buf bytes.Buffer
	err := RoomsPage(RoomsPageData{
		Rooms: []RoomRow{
			{Key: "task:42", Connections: 3, Users: 2},
			{Key: "<script>", Connections: 1, Users: 1},
		},
		Connections: 4,
	}).Render(context.Background(), &buf)

	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "<td>task:42</td><td>3</td><td>2</td>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<td><script>")
	assert.NotContains(t, html, "No active rooms")
}

func TestRoomsPage_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := RoomsPage(RoomsPageData{}).Render(ctx, &buf)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}
