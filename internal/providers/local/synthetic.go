// Package local produces deterministic synthetic media without any remote
// service. It needs no credential and backs development setups and tests.
package local

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mourne/internal/domain"
	"mourne/internal/infra"
	"mourne/internal/providers"
)

// Options configures the synthetic generator.
type Options struct {
	// Step is the pause between progress reports; zero reports instantly.
	Step   time.Duration
	Logger *infra.Logger
}

// Generator renders placeholder media for every capability.
type Generator struct {
	step   time.Duration
	logger *infra.Logger
}

func New(opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	return &Generator{step: opts.Step, logger: logger}
}

// Generate honours ctx between progress steps so cancellation is observable.
func (g *Generator) Generate(ctx context.Context, req providers.Request, progress providers.ProgressFunc) (*providers.Result, error) {
	for _, pct := range []int{10, 40, 70} {
		if err := g.pause(ctx); err != nil {
			return nil, err
		}
		providers.Report(progress, pct)
	}
	seed := deterministicSeed(req.Capability, req.Model, req.Prompt, req.Locale)

	var res *providers.Result
	switch req.Capability {
	case domain.CapabilityText:
		res = &providers.Result{Text: syntheticText(req.Prompt, seed), MIME: "text/plain; charset=utf-8"}
	case domain.CapabilityImage:
		res = &providers.Result{Data: renderImage(320, 180, seed), MIME: "image/png"}
	case domain.CapabilityVideo:
		res = &providers.Result{Data: renderClip(160, 90, seed, req.Source), MIME: "image/gif"}
	case domain.CapabilitySpeech:
		res = &providers.Result{Data: renderTone(req.Prompt, seed), MIME: "audio/wav"}
	default:
		return nil, providers.Rejected("local", fmt.Sprintf("unsupported capability %q", req.Capability))
	}
	if err := g.pause(ctx); err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("request_id", req.RequestID).
		Str("capability", string(req.Capability)).
		Str("seed", seed).
		Msg("local: generated synthetic media")
	providers.Report(progress, 100)
	return res, nil
}

func (g *Generator) pause(ctx context.Context) error {
	if g.step <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.step)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func syntheticText(prompt, seed string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "an untitled story"
	}
	return fmt.Sprintf("Scene 1: An opening image inspired by %s.\nScene 2: The motif returns, transformed.\nScene 3: A quiet resolution. [%s]", prompt, seed[:8])
}

func renderImage(width, height int, seed string) []byte {
	img := paint(width, height, seed, 0)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// renderClip produces a short animated GIF standing in for a video.
func renderClip(width, height int, seed string, src *providers.SourceMedia) []byte {
	var base image.Image
	if src != nil && len(src.Data) > 0 {
		if decoded, _, err := image.Decode(bytes.NewReader(src.Data)); err == nil {
			base = decoded
		}
	}
	anim := &gif.GIF{}
	for frame := 0; frame < 8; frame++ {
		var rgba *image.RGBA
		if base != nil {
			rgba = image.NewRGBA(image.Rect(0, 0, width, height))
			draw.Draw(rgba, rgba.Bounds(), base, base.Bounds().Min.Add(image.Pt(frame*2, 0)), draw.Src)
		} else {
			rgba = paint(width, height, seed, frame)
		}
		pal := image.NewPaletted(rgba.Bounds(), palette.Plan9)
		draw.Draw(pal, pal.Bounds(), rgba, image.Point{}, draw.Src)
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, 12)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil
	}
	return buf.Bytes()
}

// renderTone synthesizes a short sine tone whose length follows the text.
func renderTone(text, seed string) []byte {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	seconds := math.Min(float64(words)*0.4, 10)
	samples := int(seconds * providers.PCMSampleRate)
	freq := 220 + float64(mustParseHexByte(seed[0:2]))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/providers.PCMSampleRate) * 8000)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return providers.WrapPCM(pcm, providers.PCMSampleRate, providers.PCMChannels, providers.PCMBitsPerSample)
}

func paint(width, height int, seed string, shift int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := maxInt(8, height/12)
	offset := (shift * stripeHeight / 2) % (stripeHeight * 2)
	for y := -stripeHeight * 2; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y+offset, width, minInt(height, y+offset+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}
	return img
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: mustParseHexByte(segment[0:2]),
		G: mustParseHexByte(segment[2:4]),
		B: mustParseHexByte(segment[4:6]),
		A: 255,
	}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ providers.Adapter = (*Generator)(nil)
