package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"memesync/config"
	"memesync/face"
	"memesync/media"
	"memesync/speech"
	"memesync/store"
)

// Progress checkpoints per stage. Entry values are fixed observability
// points, not fine-grained percentages: stages are black-box external
// invocations with no internal progress signal. A failure freezes progress
// at the failed stage's exit checkpoint.
const (
	progressPreprocessStart  = 5
	progressPreprocessDone   = 20
	progressTTSStart         = 25
	progressTTSDone          = 40
	progressLipsyncStart     = 45
	progressLipsyncDone      = 75
	progressPostprocessStart = 80
	progressDone             = 100
)

// Stage contracts the orchestrator drives. The concrete adapters satisfy
// these; tests substitute fakes.
type PreprocessStage interface {
	Run(ctx context.Context, inputPath, workDir string) (PreprocessResult, error)
}

type TTSStage interface {
	Run(ctx context.Context, text, workDir string) (SpeechResult, error)
}

type InferenceStage interface {
	Run(ctx context.Context, videoPath, audioPath string, box face.Box, boxFound bool, workDir string) (LipSyncResult, error)
}

type EncodeStage interface {
	Run(ctx context.Context, mp4Path, outPath, workDir string, fps float64) error
}

// Orchestrator drives the four stages in order for one job, persisting state
// after every transition. It is the only mutator of a job's record during a
// run; failures are caught exactly once here and recorded as the terminal
// error state.
type Orchestrator struct {
	cfg         *config.Config
	store       store.Store
	preprocess  PreprocessStage
	tts         TTSStage
	lipsync     InferenceStage
	postprocess EncodeStage
	log         *logrus.Logger
}

// NewOrchestrator wires the production stages. The synthesizer and face
// scanner are injected because their setup (CLI lookup, cascade load) is
// owned by main.
func NewOrchestrator(
	cfg *config.Config,
	st store.Store,
	synth speech.Synthesizer,
	faces FaceScanner,
	log *logrus.Logger,
) (*Orchestrator, error) {
	runner := media.NewExecRunner(log)
	probe := media.NewProber(cfg.FFprobeBin, runner)
	ffmpeg := media.NewFFmpeg(cfg.FFmpegBin, runner)
	gifsicle := media.NewGifsicle(cfg.GifsicleBin, runner)

	lipsync, err := NewLipSyncStage(ffmpeg, probe, runner, LipSyncConfig{
		PythonBin:      cfg.PythonBin,
		Wav2LipDir:     cfg.Wav2LipDir,
		ModelPath:      cfg.ModelPath,
		ExtraArgs:      cfg.InferenceExtraArgs,
		MaxRatio:       cfg.MaxAudioVideoRatio,
		TrimToAudio:    cfg.TrimToAudio,
		UseFaceBoxHint: cfg.UseFaceBoxHint,
	}, log)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:         cfg,
		store:       st,
		preprocess:  NewPreprocessor(probe, ffmpeg, faces, cfg.FaceScanFrames, log),
		tts:         NewSpeechStage(synth, ffmpeg, probe, cfg.TTSVoice, log),
		lipsync:     lipsync,
		postprocess: NewPostprocessor(ffmpeg, gifsicle, cfg.GIFMaxFPS, log),
		log:         log,
	}, nil
}

// Run is the unit of work executed by a worker. It always starts from stage
// one regardless of any prior partial run's artifacts; a failed job is
// resubmitted, never resumed.
func (o *Orchestrator) Run(ctx context.Context, jobID, text string) (err error) {
	log := o.log.WithField("job", jobID)

	st, err := o.store.Get(ctx, jobID)
	if err != nil {
		// No record to transition; write a terminal one so pollers see the
		// failure instead of a stuck queue state.
		o.put(ctx, store.JobState{
			ID:       jobID,
			Status:   store.StatusError,
			Progress: 0,
			Error:    fmt.Sprintf("job %s not found", jobID),
		}, log)
		return err
	}

	// A panic inside a stage must not strand the job in a non-terminal
	// state: convert it to the same error path as any other failure.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			o.fail(ctx, &st, st.Progress, err, log)
		}
	}()

	workDir := filepath.Join(o.cfg.TempDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		o.fail(ctx, &st, 0, err, log)
		return err
	}

	if st.InputPath == "" {
		err := fmt.Errorf("job has no uploaded file")
		o.fail(ctx, &st, 0, err, log)
		return err
	}
	if _, statErr := os.Stat(st.InputPath); statErr != nil {
		err := fmt.Errorf("uploaded file not found")
		o.fail(ctx, &st, 0, err, log)
		return err
	}

	o.transition(ctx, &st, store.StatusPreprocessing, progressPreprocessStart, log)
	pre, err := o.preprocess.Run(ctx, st.InputPath, workDir)
	if err != nil {
		o.fail(ctx, &st, progressPreprocessDone, err, log)
		return err
	}
	o.transition(ctx, &st, store.StatusPreprocessing, progressPreprocessDone, log)

	o.transition(ctx, &st, store.StatusTTS, progressTTSStart, log)
	sp, err := o.tts.Run(ctx, text, workDir)
	if err != nil {
		o.fail(ctx, &st, progressTTSStart, err, log)
		return err
	}
	o.transition(ctx, &st, store.StatusTTS, progressTTSDone, log)

	o.transition(ctx, &st, store.StatusLipsync, progressLipsyncStart, log)
	ls, err := o.lipsync.Run(ctx, pre.MP4Path, sp.WAVPath, pre.FaceBox, pre.FaceBoxFound, workDir)
	if err != nil {
		o.fail(ctx, &st, progressLipsyncStart, err, log)
		return err
	}
	o.transition(ctx, &st, store.StatusLipsync, progressLipsyncDone, log)

	o.transition(ctx, &st, store.StatusPostprocessing, progressPostprocessStart, log)
	outName := jobID + ".gif"
	outPath := filepath.Join(o.cfg.OutputDir, outName)
	if err := o.postprocess.Run(ctx, ls.MP4Path, outPath, workDir, pre.FPS); err != nil {
		o.fail(ctx, &st, progressPostprocessStart, err, log)
		return err
	}

	st.Status = store.StatusDone
	st.Progress = progressDone
	st.OutputURL = "/output/" + outName
	o.put(ctx, st, log)
	log.WithField("output", st.OutputURL).Info("job complete")
	return nil
}

// transition persists a status/progress checkpoint. Output and error stay
// untouched until a terminal transition.
func (o *Orchestrator) transition(ctx context.Context, st *store.JobState, status store.Status, progress int, log *logrus.Entry) {
	st.Status = status
	st.Progress = progress
	o.put(ctx, *st, log)
	log.WithFields(logrus.Fields{"status": status, "progress": progress}).Info("job state")
}

// fail records the terminal error state with progress frozen at the failed
// stage's checkpoint. The stage's message becomes the user-visible cause.
func (o *Orchestrator) fail(ctx context.Context, st *store.JobState, progress int, cause error, log *logrus.Entry) {
	st.Status = store.StatusError
	st.Progress = progress
	st.Error = cause.Error()
	st.OutputURL = ""
	o.put(ctx, *st, log)
	log.WithError(cause).WithField("progress", progress).Error("job failed")
}

// put is a blind whole-record overwrite; a storage failure here is logged
// but cannot fail the run any harder than it already has.
func (o *Orchestrator) put(ctx context.Context, st store.JobState, log *logrus.Entry) {
	if err := o.store.Put(ctx, st); err != nil {
		log.WithError(err).Error("persisting job state")
	}
}
