// Package process supervises long-running child processes.
//
// graycam uses it to run ffmpeg as a frame source: the manager starts the
// process, hands its stdout to a frame splitter, restarts it with
// exponential backoff when it dies, and kills it when a watchdog reports
// that frames have stopped arriving.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "ffmpeg",
//	    Binary:           "/usr/bin/ffmpeg",
//	    Args:             args,
//	    Stdout:           splitter.Consume,
//	    RestartOnFailure: true,
//	    Watchdog:         splitter.CheckFresh,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
