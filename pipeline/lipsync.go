package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"memesync/face"
	"memesync/media"
	"memesync/timing"
)

const stageLipsync = "lip sync"

// LipSyncResult references the inferred video.
type LipSyncResult struct {
	MP4Path string
}

// LipSyncConfig collects the inference tunables.
type LipSyncConfig struct {
	PythonBin  string
	Wav2LipDir string
	ModelPath  string
	ExtraArgs  string
	MaxRatio   float64
	// TrimToAudio trims the clip down to the speech length instead of
	// padding the speech with silence, avoiding inference on voiceless
	// frames.
	TrimToAudio    bool
	UseFaceBoxHint bool
}

// LipSyncStage wraps the resource-heavy inference run. It reconciles the
// audio/video durations before spending any compute.
type LipSyncStage struct {
	ffmpeg    Transcoder
	probe     Prober
	runner    media.Runner
	cfg       LipSyncConfig
	extraArgs []string
	log       *logrus.Logger
}

func NewLipSyncStage(ffmpeg Transcoder, probe Prober, runner media.Runner, cfg LipSyncConfig, log *logrus.Logger) (*LipSyncStage, error) {
	var extra []string
	if cfg.ExtraArgs != "" {
		var err error
		extra, err = shlex.Split(cfg.ExtraArgs)
		if err != nil {
			return nil, errors.Wrap(err, "invalid inference extra args")
		}
	}
	return &LipSyncStage{ffmpeg: ffmpeg, probe: probe, runner: runner, cfg: cfg, extraArgs: extra, log: log}, nil
}

func (s *LipSyncStage) Run(
	ctx context.Context,
	videoPath, audioPath string,
	box face.Box, boxFound bool,
	workDir string,
) (LipSyncResult, error) {
	// Measurement gaps deliberately yield 0 here; the reconciler treats an
	// unknown reference as use-as-is rather than failing the run.
	audioDur, _ := s.probe.Duration(ctx, audioPath)
	videoDur, _ := s.probe.Duration(ctx, videoPath)
	s.log.WithFields(logrus.Fields{
		"audio_duration": audioDur,
		"video_duration": videoDur,
	}).Info("reconciling durations")

	policy := timing.PadDependent
	if s.cfg.TrimToAudio {
		policy = timing.TrimDependent
	}

	decision := timing.Reconcile(videoDur, audioDur, s.cfg.MaxRatio, policy)
	switch decision.Action {
	case timing.Reject:
		return LipSyncResult{}, failure(stageLipsync, ErrTextTooLong,
			"text too long for this clip, try shorter text: speech is %.1fs but the clip is only %.1fs",
			audioDur, videoDur)
	case timing.Pad:
		padded := filepath.Join(workDir, "audio_padded.wav")
		s.log.WithField("target", decision.Target).Info("padding audio with silence")
		if err := s.ffmpeg.PadAudio(ctx, audioPath, padded, decision.Target); err != nil {
			return LipSyncResult{}, failure(stageLipsync, err, "padding audio: %v", err)
		}
		audioPath = padded
	case timing.Trim:
		// Align the pair at the speech length: no frame without a voice.
		trimmed := filepath.Join(workDir, "video_trimmed.mp4")
		s.log.WithField("target", decision.Target).Info("trimming video to audio length")
		if err := s.ffmpeg.TrimVideo(ctx, videoPath, trimmed, decision.Target); err != nil {
			return LipSyncResult{}, failure(stageLipsync, err, "trimming video: %v", err)
		}
		videoPath = trimmed
	}

	inferenceScript := filepath.Join(s.cfg.Wav2LipDir, "inference.py")
	if _, err := os.Stat(inferenceScript); err != nil {
		return LipSyncResult{}, failure(stageLipsync, ErrInferenceToolingMissing,
			"inference script not found at %s; deploy the Wav2Lip checkout", inferenceScript)
	}
	if _, err := os.Stat(s.cfg.ModelPath); err != nil {
		return LipSyncResult{}, failure(stageLipsync, ErrModelMissing,
			"model weights not found at %s; download wav2lip_gan.pth", s.cfg.ModelPath)
	}

	outputPath := filepath.Join(workDir, "lipsync_output.mp4")
	args := []string{
		inferenceScript,
		"--checkpoint_path", s.cfg.ModelPath,
		"--face", videoPath,
		"--audio", audioPath,
		"--outfile", outputPath,
		"--pads", "0", "10", "0", "0",
		"--resize_factor", "1",
		"--nosmooth",
	}
	if s.cfg.UseFaceBoxHint && boxFound {
		// A precomputed box lets the engine skip downloading and running its
		// own detector. Worst case the hint is stale and inference quality
		// suffers slightly; it never fails the stage.
		args = append(args,
			"--box",
			fmt.Sprintf("%d", box.Y),
			fmt.Sprintf("%d", box.Y+box.Height),
			fmt.Sprintf("%d", box.X),
			fmt.Sprintf("%d", box.X+box.Width),
		)
	}
	args = append(args, s.extraArgs...)

	s.log.Info("running lip-sync inference")
	out, err := s.runner.Run(ctx, s.cfg.PythonBin, args...)
	s.writeLog(workDir, out)
	if err != nil {
		return LipSyncResult{}, failure(stageLipsync, ErrInferenceFailed, "inference failed: %v", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return LipSyncResult{}, failure(stageLipsync, ErrNoOutputProduced,
			"inference finished but produced no output; see lipsync.log in the job directory")
	}

	return LipSyncResult{MP4Path: outputPath}, nil
}

// writeLog keeps the inference output for debugging. Best effort.
func (s *LipSyncStage) writeLog(workDir, out string) {
	logPath := filepath.Join(workDir, "lipsync.log")
	if err := os.WriteFile(logPath, []byte(out), 0o644); err != nil {
		s.log.WithError(err).Warn("could not write inference log")
	}
}
