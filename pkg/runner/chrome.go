package runner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/warscan/warscan/pkg/browser"
	"github.com/warscan/warscan/pkg/scanner"
)

// ChromeLauncher starts a supervised browser process and connects a
// protocol session to it.
type ChromeLauncher struct {
	Supervisor *browser.Supervisor
	Logger     *slog.Logger
}

// Launch implements Launcher. A process whose session cannot be opened is
// stopped before the error is returned.
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	inst, err := l.Supervisor.Start(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := browser.Connect(ctx, inst, l.Logger)
	if err != nil {
		return nil, errors.Join(err, l.Supervisor.Stop(inst))
	}
	return &chromeBrowser{
		Browser: scanner.FromSession(sess),
		sup:     l.Supervisor,
		inst:    inst,
		sess:    sess,
	}, nil
}

type chromeBrowser struct {
	scanner.Browser
	sup  *browser.Supervisor
	inst *browser.Instance
	sess *browser.Session
}

func (b *chromeBrowser) Alive(ctx context.Context) bool {
	return !b.inst.Exited() && b.sess.Alive(ctx)
}

func (b *chromeBrowser) Info() BrowserInfo {
	return BrowserInfo{
		PID:      b.inst.PID,
		Endpoint: b.inst.Endpoint(),
		Product:  b.sess.Product(),
	}
}

// Close detaches the session, then tears down the process tree.
func (b *chromeBrowser) Close() error {
	return errors.Join(b.sess.Close(), b.sup.Stop(b.inst))
}
