package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/mobiletts/internal/app/session"
	"github.com/osa030/mobiletts/internal/app/settings"
	"github.com/osa030/mobiletts/internal/domain/audio"
)

const titleWidth = 48

func login(ctx context.Context, rt *runtime, token string) error {
	if err := rt.session.Login(ctx, token); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func logout(ctx context.Context, rt *runtime) error {
	if err := rt.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func listVoices(ctx context.Context, rt *runtime) error {
	voices, err := rt.client.Voices(ctx)
	if err != nil {
		return err
	}
	def := rt.session.Settings().State().DefaultVoice
	for _, v := range voices {
		marker := " "
		if v.Name == def {
			marker = "*"
		}
		fmt.Printf("%s %-12s %s\n", marker, v.Name, v.Language)
	}
	return nil
}

func health(ctx context.Context, rt *runtime) error {
	h, err := rt.client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Server: %s\n", rt.cfg.Server.URL)
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Version: %s\n", h.Version)
	return nil
}

func showStatus(ctx context.Context, rt *runtime) error {
	count, err := rt.db.Count(ctx)
	if err != nil {
		return err
	}
	st := rt.session.Status()

	fmt.Printf("Server: %s\n", rt.cfg.Server.URL)
	fmt.Printf("Logged in: %v\n", st.Authenticated)
	fmt.Printf("History: %d entries (limit %d)\n", count, rt.cfg.Storage.MaxEntries)
	fmt.Printf("Queue: %d items (%s)\n", st.QueueSize, formatSeconds(st.QueueDuration))
	if st.Player.HasAudio() {
		fmt.Printf("Player: %s / %s (%.0f%%)\n",
			formatSeconds(st.Player.CurrentTime), formatSeconds(st.Player.Duration), st.Progress*100)
	} else {
		fmt.Println("Player: idle")
	}
	fmt.Printf("Voice: %s at %vx\n", st.Settings.DefaultVoice, st.Settings.DefaultSpeed)
	return nil
}

type speakOptions struct {
	Text   string
	File   string
	Voice  string
	Speed  float64
	Out    string
	Timing string
	Stream bool
}

func speak(ctx context.Context, rt *runtime, opts speakOptions) error {
	text := opts.Text
	if opts.File != "" {
		if text != "" {
			return errors.New("give either text or --file, not both")
		}
		f, err := os.Open(opts.File)
		if err != nil {
			return errors.Wrap(err, "failed to open document")
		}
		defer f.Close()

		if opts.Stream {
			return streamDocument(ctx, rt, f, opts)
		}

		doc, err := rt.client.UploadDocument(ctx, filepath.Base(opts.File), f)
		if err != nil {
			return err
		}
		fmt.Printf("Extracted %d chunks from %s\n", doc.ChunkCount, doc.Filename)
		text = doc.Text
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to speak: give text or --file")
	}

	entry, err := rt.session.Generate(ctx, session.Request{
		Text:  text,
		Voice: opts.Voice,
		Speed: opts.Speed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Generated %s (%s, voice=%s, speed=%v, %d segments)\n",
		entry.ID, formatSeconds(entry.Duration), entry.Voice, entry.Speed, len(entry.TimingSegments))
	return writeOutputs(opts, audio.Clip{Data: entry.Audio, Segments: entry.TimingSegments})
}

// streamDocument has the server extract and synthesize the document in one
// request. The result bypasses the session, so it is not kept in history.
func streamDocument(ctx context.Context, rt *runtime, r io.Reader, opts speakOptions) error {
	if opts.Out == "" {
		return errors.New("--stream requires --out")
	}
	if !rt.session.Auth().IsAuthenticated() {
		return session.ErrNotAuthenticated
	}

	st := rt.session.Settings().State()
	voice, speed := opts.Voice, opts.Speed
	if voice == "" {
		voice = st.DefaultVoice
	}
	if speed <= 0 {
		speed = st.DefaultSpeed
	}

	clip, err := rt.client.GenerateDocument(ctx, filepath.Base(opts.File), r, voice, speed)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %s (voice=%s, speed=%v, %d segments)\n",
		formatSeconds(clip.Duration()), voice, speed, len(clip.Segments))
	return writeOutputs(opts, clip)
}

func writeOutputs(opts speakOptions, clip audio.Clip) error {
	if opts.Out != "" {
		if err := writeFile(opts.Out, clip.Data); err != nil {
			return err
		}
		fmt.Printf("Audio written to %s\n", opts.Out)
	}
	if opts.Timing != "" {
		data, err := json.MarshalIndent(clip.Segments, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode timing")
		}
		if err := writeFile(opts.Timing, data); err != nil {
			return err
		}
		fmt.Printf("Timing written to %s\n", opts.Timing)
	}
	return nil
}

func listHistory(ctx context.Context, rt *runtime) error {
	entries, err := rt.session.ListHistory(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %-8s  %6s  %s\n",
			e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Voice, formatSeconds(e.Duration), e.Title(titleWidth))
	}
	return nil
}

func exportHistory(ctx context.Context, rt *runtime, id, out string) error {
	entry, err := rt.session.GetHistory(ctx, id)
	if err != nil {
		return err
	}
	if err := writeFile(out, entry.Audio); err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s (%d bytes)\n", id, out, len(entry.Audio))
	return nil
}

func deleteHistory(ctx context.Context, rt *runtime, id string) error {
	if err := rt.session.DeleteHistory(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}

func showSettings(rt *runtime) error {
	st := rt.session.Settings().State()
	fmt.Printf("%s: %s\n", settings.KeyDefaultVoice, st.DefaultVoice)
	fmt.Printf("%s: %v\n", settings.KeyDefaultSpeed, st.DefaultSpeed)
	fmt.Printf("%s: %v\n", settings.KeyAutoPlay, st.AutoPlay)
	return nil
}

func setSetting(rt *runtime, key, value string) error {
	if err := rt.session.Settings().Update(key, value); err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			return errors.Newf("unknown key %q (valid keys: %s)", key, strings.Join(settings.Keys(), ", "))
		}
		return err
	}
	return showSettings(rt)
}

func resetSettings(rt *runtime) error {
	rt.session.Settings().Reset()
	return showSettings(rt)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create output dir")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", m, s)
}
