package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/odinbridge"
	"github.com/opd-ai/odinbridge/config"
	"github.com/opd-ai/odinbridge/events"
	"github.com/opd-ai/odinbridge/native"
	"github.com/opd-ai/odinbridge/native/sim"
	"github.com/opd-ai/odinbridge/render"
	"github.com/opd-ai/odinbridge/render/speaker"
	"github.com/opd-ai/odinbridge/room"
)

// tickInterval is the host loop period.
const tickInterval = 20 * time.Millisecond

func joinCmd() *cobra.Command {
	var (
		useSim   bool
		noAudio  bool
		tonePeer uint64
		duration time.Duration
		userData string
	)

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room and print its events until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var (
				api    native.API
				engine *sim.Engine
			)
			if useSim {
				if cfg.AccessKey == "" {
					if cfg.AccessKey, err = config.GenerateAccessKey(); err != nil {
						return err
					}
				}
				engine = sim.New(sim.WithAccessKey(cfg.AccessKey))
				api = engine
			} else if api, err = openNative(cfg); err != nil {
				return err
			}

			var opts []odinbridge.Option
			if !noAudio {
				mixer := render.NewMixer()
				dev := speaker.New(mixer, speaker.Config{
					SampleRate:      float64(cfg.Audio.RemoteSampleRate),
					Channels:        int(cfg.Audio.RemoteChannels),
					FramesPerBuffer: int(cfg.Audio.RemoteSampleRate) / 100,
				})
				if err := openSpeaker(dev); err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "join",
						"error":    err.Error(),
					}).Warn("Audio output unavailable, continuing without sound")
				} else {
					defer dev.Close()
					opts = append(opts, odinbridge.WithMixer(mixer))
				}
			}

			rt, err := odinbridge.NewRuntime(cfg, api, opts...)
			if err != nil {
				return err
			}
			defer rt.Close()

			printEvents(cmd.OutOrStdout(), rt)
			if engine != nil && tonePeer != 0 {
				scriptTonePeer(rt, engine, tonePeer)
			}

			if err := rt.Start(); err != nil {
				return err
			}
			var data []byte
			if cmd.Flags().Changed("user-data") {
				data = []byte(userData)
			}
			if err := rt.JoinRoom(args[0], data); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return pump(ctx, rt)
		},
	}

	cmd.Flags().BoolVar(&useSim, "sim", false, "use the built-in engine simulation")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "do not open an audio output device")
	cmd.Flags().Uint64Var(&tonePeer, "tone-peer", 0, "with --sim, add a remote peer with this id that plays a tone")
	cmd.Flags().DurationVar(&duration, "duration", 0, "leave after this long (default: until interrupted)")
	cmd.Flags().StringVar(&userData, "user-data", "", "local peer user data (default: config user_data)")
	return cmd
}

func openSpeaker(dev *speaker.Device) error {
	if err := dev.Open(); err != nil {
		return err
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		return err
	}
	return nil
}

// pump drives the runtime from the host loop until ctx ends.
func pump(ctx context.Context, rt *odinbridge.Runtime) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, r := range rt.Rooms() {
				_ = rt.LeaveRoom(r.Name())
			}
			rt.Wait()
			rt.Pump()
			return nil
		case <-ticker.C:
			rt.Pump()
		}
	}
}

func printEvents(w io.Writer, rt *odinbridge.Runtime) {
	d := rt.Dispatcher()
	events.Subscribe(d, func(_ *room.Room, e events.RoomJoinRequested) {
		fmt.Fprintf(w, "joining %s\n", e.Name)
	})
	events.Subscribe(d, func(_ *room.Room, e events.RoomJoined) {
		fmt.Fprintf(w, "joined %s as peer %d\n", e.Room.Name(), e.Room.OwnID())
	})
	events.Subscribe(d, func(_ *room.Room, e events.RoomLeft) {
		fmt.Fprintf(w, "left %s\n", e.Name)
	})
	events.Subscribe(d, func(r *room.Room, e events.PeerJoined) {
		fmt.Fprintf(w, "[%s] peer %d joined: %q\n", r.Name(), e.Peer.ID, e.Peer.UserData())
	})
	events.Subscribe(d, func(r *room.Room, e events.PeerUpdated) {
		fmt.Fprintf(w, "[%s] peer %d updated: %q\n", r.Name(), e.PeerID, e.UserData)
	})
	events.Subscribe(d, func(r *room.Room, e events.PeerLeft) {
		fmt.Fprintf(w, "[%s] peer %d left\n", r.Name(), e.PeerID)
	})
	events.Subscribe(d, func(r *room.Room, e events.MediaAdded) {
		fmt.Fprintf(w, "[%s] peer %d added media %d\n", r.Name(), e.PeerID, e.Media.ID())
	})
	events.Subscribe(d, func(r *room.Room, e events.MediaRemoved) {
		fmt.Fprintf(w, "[%s] peer %d removed media %d\n", r.Name(), e.PeerID, e.MediaID)
	})
	events.Subscribe(d, func(r *room.Room, e events.MessageReceived) {
		fmt.Fprintf(w, "[%s] message from %d: %q\n", r.Name(), e.PeerID, e.Data)
	})
	events.Subscribe(d, func(_ *room.Room, e events.ConnectionStateChanged) {
		fmt.Fprintf(w, "connection %s\n", e.State)
	})
}

// scriptTonePeer makes a simulated remote peer join every room the runtime
// joins and publish a 440 Hz stream.
func scriptTonePeer(rt *odinbridge.Runtime, engine *sim.Engine, peerID uint64) {
	events.Subscribe(rt.Dispatcher(), func(_ *room.Room, e events.RoomJoined) {
		ptr := e.Room.Pointer()
		if err := engine.InjectPeerJoined(ptr, peerID, []byte("tone")); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "scriptTonePeer",
				"error":    err.Error(),
			}).Warn("Failed to inject peer")
			return
		}
		stream, err := engine.InjectMediaAdded(ptr, peerID, 1)
		if err == nil {
			err = engine.SetTone(stream, 440, 0.2)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "scriptTonePeer",
				"error":    err.Error(),
			}).Warn("Failed to inject tone stream")
		}
	})
}
