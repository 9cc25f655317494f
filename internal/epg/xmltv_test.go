// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="GR_32736_1024"><display-name>NHK G</display-name></channel>
  <channel id="BS_4_101"><display-name>BS1</display-name></channel>
  <programme start="20260301210000 +0900" stop="20260301220000 +0900" channel="GR_32736_1024">
    <title>News 9</title>
    <desc>Evening news</desc>
    <category>0.1</category>
    <category>News</category>
  </programme>
  <programme start="20260301200000 +0900" stop="20260301210000 +0900" channel="BS_4_101">
    <title>Anime</title>
    <sub-title>Episode 3</sub-title>
    <desc>Long text</desc>
  </programme>
  <programme start="20260301200000 +0900" stop="20260301210000 +0900" channel="CS_9_9"><title>Orphan</title></programme>
  <programme start="bogus" stop="20260301210000 +0900" channel="BS_4_101"><title>Broken</title></programme>
</tv>`

func TestParseXMLTV(t *testing.T) {
	g, err := ParseXMLTV(strings.NewReader(sampleGuide))
	require.NoError(t, err)

	require.Len(t, g.Channels, 2)
	assert.Equal(t, Channel{ID: 3273601024, NetworkID: 32736, ServiceID: 1024, BroadcastType: BroadcastGR, Name: "NHK G"}, g.Channels[0])
	assert.Equal(t, 2, g.Skipped)

	require.Len(t, g.Programs, 2)
	anime, news := g.Programs[0], g.Programs[1]
	assert.Equal(t, "Anime", anime.Name, "ordered by start")
	assert.Equal(t, "Episode 3", anime.Description)
	assert.Equal(t, "Long text", anime.Extended)
	assert.Equal(t, BroadcastBS, anime.BroadcastType)

	assert.Equal(t, "Evening news", news.Description)
	assert.Empty(t, news.Extended)
	assert.Equal(t, []Genre{{Lv1: 0, Lv2: 1}}, news.Genres)
	assert.True(t, news.StartAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, news.Duration())
	assert.True(t, news.IsFree)
}

func TestParseXMLTV_StableProgramIDs(t *testing.T) {
	a, err := ParseXMLTV(strings.NewReader(sampleGuide))
	require.NoError(t, err)
	b, err := ParseXMLTV(strings.NewReader(sampleGuide))
	require.NoError(t, err)
	assert.Equal(t, a.Programs[0].ID, b.Programs[0].ID)
	assert.NotEqual(t, a.Programs[0].ID, a.Programs[1].ID)
	assert.Positive(t, a.Programs[0].ID)
}

func TestParseXMLTV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `<tv><channel id="GR_1_1">`},
		{"channel id format", `<tv><channel id="nhk.jp"/></tv>`},
		{"unknown type", `<tv><channel id="XX_1_1"/></tv>`},
		{"external entity", `<!DOCTYPE tv [<!ENTITY x SYSTEM "file:///etc/passwd">]><tv><channel id="GR_1_1"><display-name>&x;</display-name></channel></tv>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXMLTV(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestImport_ReplacesChannelSpan(t *testing.T) {
	ctx := context.Background()
	s := newTestSqliteStore(t)
	base := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	chID := ChannelID(4, 101)

	// Cancelled upstream: disappears with the next import.
	require.NoError(t, s.PutPrograms(ctx, Program{ID: 77, ChannelID: chID, NetworkID: 4, BroadcastType: BroadcastBS, StartAt: base.Add(30 * time.Minute), EndAt: base.Add(90 * time.Minute), Name: "Old"}))

	g, err := ParseXMLTV(strings.NewReader(sampleGuide))
	require.NoError(t, err)
	require.NoError(t, Import(ctx, s, g))

	got, err := s.Programs(ctx, base, base.Add(4*time.Hour))
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Anime", "News 9"}, names)

	ch, err := s.Channel(ctx, chID)
	require.NoError(t, err)
	assert.Equal(t, "BS1", ch.Name)
}
