// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	unorm "golang.org/x/text/unicode/norm"
)

// MaxXMLTVSize bounds a single guide document.
const MaxXMLTVSize = 50 * 1024 * 1024

// xmltvTimeLayouts are the accepted XMLTV timestamp forms.
var xmltvTimeLayouts = []string{"20060102150405 -0700", "20060102150405"}

// XMLTV channel ids carry the tuning triple: "<type>_<networkId>_<serviceId>",
// for example "GR_32736_1024".
var channelIDPattern = regexp.MustCompile(`^([A-Z]+)_(\d+)_(\d+)$`)

// ARIB genre pairs are exported as "<lv1>.<lv2>" categories.
var genrePattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})$`)

type xmltvDoc struct {
	XMLName    xml.Name         `xml:"tv"`
	Channels   []xmltvChannel   `xml:"channel"`
	Programmes []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
}

type xmltvProgramme struct {
	Start    string   `xml:"start,attr"`
	Stop     string   `xml:"stop,attr"`
	Channel  string   `xml:"channel,attr"`
	Title    []string `xml:"title"`
	SubTitle []string `xml:"sub-title"`
	Desc     []string `xml:"desc"`
	Category []string `xml:"category"`
}

// Guide is a decoded XMLTV document.
type Guide struct {
	Channels []Channel
	Programs []Program
	// Skipped counts programmes dropped for unknown channels or bad times.
	Skipped int
}

// ParseXMLTV decodes an XMLTV document. Entity expansion is disabled and
// input beyond MaxXMLTVSize is ignored.
func ParseXMLTV(r io.Reader) (Guide, error) {
	dec := xml.NewDecoder(io.LimitReader(r, MaxXMLTVSize))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var doc xmltvDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Guide{}, fmt.Errorf("decode xmltv: %w", err)
	}

	var g Guide
	byXMLID := make(map[string]Channel, len(doc.Channels))
	for _, xc := range doc.Channels {
		ch, err := parseChannel(xc)
		if err != nil {
			return Guide{}, err
		}
		byXMLID[xc.ID] = ch
		g.Channels = append(g.Channels, ch)
	}

	for _, xp := range doc.Programmes {
		ch, ok := byXMLID[xp.Channel]
		if !ok {
			g.Skipped++
			continue
		}
		p, err := parseProgramme(xp, ch)
		if err != nil {
			g.Skipped++
			continue
		}
		g.Programs = append(g.Programs, p)
	}
	sort.Slice(g.Programs, func(i, j int) bool {
		if !g.Programs[i].StartAt.Equal(g.Programs[j].StartAt) {
			return g.Programs[i].StartAt.Before(g.Programs[j].StartAt)
		}
		return g.Programs[i].ChannelID < g.Programs[j].ChannelID
	})
	return g, nil
}

// ChannelID derives the numeric channel id used throughout the guide.
func ChannelID(networkID, serviceID int64) int64 {
	return networkID*100000 + serviceID
}

func parseChannel(xc xmltvChannel) (Channel, error) {
	m := channelIDPattern.FindStringSubmatch(xc.ID)
	if m == nil {
		return Channel{}, fmt.Errorf("xmltv channel %q: id must be TYPE_NETWORK_SERVICE", xc.ID)
	}
	bt := BroadcastType(m[1])
	if !bt.Valid() {
		return Channel{}, fmt.Errorf("xmltv channel %q: unknown broadcast type %q", xc.ID, m[1])
	}
	nid, _ := strconv.ParseInt(m[2], 10, 64)
	sid, _ := strconv.ParseInt(m[3], 10, 64)
	name := xc.ID
	if len(xc.DisplayName) > 0 {
		name = cleanText(xc.DisplayName[0])
	}
	return Channel{
		ID:            ChannelID(nid, sid),
		NetworkID:     nid,
		ServiceID:     sid,
		BroadcastType: bt,
		Name:          name,
	}, nil
}

func parseProgramme(xp xmltvProgramme, ch Channel) (Program, error) {
	start, err := parseXMLTVTime(xp.Start)
	if err != nil {
		return Program{}, err
	}
	stop, err := parseXMLTVTime(xp.Stop)
	if err != nil {
		return Program{}, err
	}
	if !stop.After(start) {
		return Program{}, fmt.Errorf("programme on %s ends before it starts", xp.Channel)
	}

	p := Program{
		ID:            programID(ch.ID, start),
		ChannelID:     ch.ID,
		NetworkID:     ch.NetworkID,
		BroadcastType: ch.BroadcastType,
		StartAt:       start,
		EndAt:         stop,
		Name:          first(xp.Title),
		Description:   first(xp.SubTitle),
		Extended:      first(xp.Desc),
		IsFree:        true,
	}
	if p.Description == "" {
		p.Description, p.Extended = p.Extended, ""
	}
	for _, c := range xp.Category {
		m := genrePattern.FindStringSubmatch(strings.TrimSpace(c))
		if m == nil {
			continue
		}
		lv1, _ := strconv.Atoi(m[1])
		lv2, _ := strconv.Atoi(m[2])
		p.Genres = append(p.Genres, Genre{Lv1: lv1, Lv2: lv2})
	}
	return p, nil
}

func parseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range xmltvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid xmltv time %q", s)
}

// programID is stable across imports of the same slot.
func programID(channelID int64, start time.Time) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d/%d", channelID, start.Unix())
	return int64(h.Sum64() >> 1)
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return cleanText(vals[0])
}

// cleanText composes the text to NFC so keyword matching sees one form.
func cleanText(s string) string {
	return strings.TrimSpace(unorm.NFC.String(s))
}

// GuideWriter is the ingestion side of a program store.
type GuideWriter interface {
	PutChannels(ctx context.Context, chs ...Channel) error
	ReplacePrograms(ctx context.Context, channelID int64, from, to time.Time, ps ...Program) error
}

// Import writes g channel by channel. Each channel's programs replace the
// stored ones in the span the guide covers.
func Import(ctx context.Context, w GuideWriter, g Guide) error {
	if err := w.PutChannels(ctx, g.Channels...); err != nil {
		return fmt.Errorf("import channels: %w", err)
	}

	byChannel := make(map[int64][]Program)
	for _, p := range g.Programs {
		byChannel[p.ChannelID] = append(byChannel[p.ChannelID], p)
	}
	for chID, ps := range byChannel {
		from, to := ps[0].StartAt, ps[0].EndAt
		for _, p := range ps {
			if p.StartAt.Before(from) {
				from = p.StartAt
			}
			if p.EndAt.After(to) {
				to = p.EndAt
			}
		}
		if err := w.ReplacePrograms(ctx, chID, from, to, ps...); err != nil {
			return fmt.Errorf("import programs: %w", err)
		}
	}
	return nil
}
