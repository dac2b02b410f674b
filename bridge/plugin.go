// Package bridge exposes the core through a method-call channel: calls
// arrive as (method, argument map) and results leave as plain values.
package bridge

import (
	"sort"

	"github.com/boypt/dlbridge/core"
	"github.com/boypt/dlbridge/engine"
	"go.uber.org/zap"
)

// EventMethod is the method invoked on the attached channel for every
// download event.
const EventMethod = "onDownloadEvent"

// Channel is the caller side of the method channel.
type Channel interface {
	InvokeMethod(method string, args map[string]interface{}) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(method string, args map[string]interface{}) error

func (f ChannelFunc) InvokeMethod(method string, args map[string]interface{}) error {
	return f(method, args)
}

// Plugin owns one core.State and serves method calls against it.
type Plugin struct {
	state *core.State
}

// New returns a plugin driving lib. A nil lib answers every engine method
// with NATIVE_MISSING.
func New(lib engine.Library, opts core.Options) *Plugin {
	return &Plugin{state: core.New(lib, opts)}
}

func (p *Plugin) State() *core.State { return p.state }

// Attach routes download events to ch, replacing a previous channel.
func (p *Plugin) Attach(ch Channel) {
	if ch == nil {
		p.state.SetSubscriber(nil)
		return
	}
	p.state.SetSubscriber(core.SubscriberFunc(func(ev core.Event) error {
		return ch.InvokeMethod(EventMethod, map[string]interface{}{
			"event": int(ev.Kind),
			"gid":   ev.GID,
		})
	}))
}

// Detach stops event delivery.
func (p *Plugin) Detach() {
	p.Attach(nil)
}

// Dispose detaches the channel and tears the engine down.
func (p *Plugin) Dispose() {
	p.Detach()
	p.state.Close()
	Logger().Debug("plugin disposed")
}

// Methods lists the method names Invoke understands.
func Methods() []string {
	out := make([]string, 0, len(methodNames))
	for m := range methodNames {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

var methodNames = map[string]struct{}{
	"getPlatformVersion": {}, "libraryInit": {}, "libraryDeinit": {},
	"sessionNew": {}, "sessionFinal": {}, "run": {}, "startRunLoop": {},
	"stopRunLoop": {}, "shutdown": {}, "addUri": {}, "addTorrent": {},
	"addMetalink": {}, "removeDownload": {}, "pauseDownload": {},
	"unpauseDownload": {}, "changePosition": {}, "changeOption": {},
	"getGlobalOption": {}, "getGlobalOptions": {}, "changeGlobalOption": {},
	"getGlobalStat": {}, "getDownloadInfo": {}, "getDownloadFiles": {},
	"getDownloadOption": {}, "getDownloadOptions": {},
	"getDownloadBtMetaInfo": {}, "getActiveDownload": {},
}

// Invoke runs one method. Failures are returned as *MethodError.
func (p *Plugin) Invoke(method string, args Args) (result interface{}, err error) {
	result, err = p.invoke(method, args)
	if err != nil {
		me := methodError(err)
		Logger().Debug("method failed",
			zap.String("method", method),
			zap.String("code", me.Code),
			zap.String("message", me.Message))
		return nil, me
	}
	return result, nil
}

func (p *Plugin) invoke(method string, args Args) (interface{}, error) {
	s := p.state
	switch method {
	case "getPlatformVersion":
		return platformVersion(), nil
	case "libraryInit":
		return s.LibraryInit()
	case "libraryDeinit":
		return s.LibraryDeinit()
	case "sessionNew":
		return nil, s.SessionOpen(args.Options("options"), args.Bool("keepRunning", true))
	case "sessionFinal":
		return s.SessionClose()
	case "run":
		return s.RunOnce()
	case "startRunLoop":
		return nil, s.StartRunLoop()
	case "stopRunLoop":
		return nil, s.StopRunLoop()
	case "shutdown":
		return s.Shutdown(args.Bool("force", false))
	case "addUri":
		uris, ok := args.Strings("uris")
		if !ok {
			return nil, badArgs("Missing 'uris'")
		}
		return s.AddURI(uris, args.Options("options"), args.Int("position", -1))
	case "addTorrent":
		webSeeds, _ := args.Strings("webseedUris")
		return s.AddTorrent(args.String("torrentFile"), webSeeds, args.Options("options"), args.Int("position", -1))
	case "addMetalink":
		gids, err := s.AddMetalink(args.String("metalinkFile"), args.Options("options"), args.Int("position", -1))
		if err != nil {
			return nil, err
		}
		return stringList(gids), nil
	case "removeDownload":
		return resultCode(s.RemoveDownload(args.String("gid"), args.Bool("force", false)))
	case "pauseDownload":
		return resultCode(s.PauseDownload(args.String("gid"), args.Bool("force", false)))
	case "unpauseDownload":
		return resultCode(s.UnpauseDownload(args.String("gid")))
	case "changePosition":
		pos, err := s.ChangePosition(args.String("gid"), args.Int("pos", 0), engine.OffsetMode(args.Int("how", 0)))
		if err != nil {
			return resultCode(err)
		}
		return pos, nil
	case "changeOption":
		return resultCode(s.ChangeOption(args.String("gid"), args.Options("options")))
	case "getGlobalOption":
		v, ok, err := s.GlobalOption(args.String("name"))
		return optionalString(v, ok, err)
	case "getGlobalOptions":
		kv, err := s.GlobalOptions()
		if err != nil {
			return nil, err
		}
		return optionsMap(kv), nil
	case "changeGlobalOption":
		return resultCode(s.ChangeGlobalOption(args.Options("options")))
	case "getGlobalStat":
		st, err := s.GlobalStat()
		if err != nil {
			return nil, err
		}
		return globalStatMap(st), nil
	case "getDownloadInfo":
		info, err := s.DownloadInfo(args.String("gid"))
		if err != nil {
			return nil, err
		}
		return downloadInfoMap(info), nil
	case "getDownloadFiles":
		files, err := s.DownloadFiles(args.String("gid"))
		if err != nil {
			return nil, err
		}
		return filesList(files), nil
	case "getDownloadOption":
		v, ok, err := s.DownloadOption(args.String("gid"), args.String("name"))
		return optionalString(v, ok, err)
	case "getDownloadOptions":
		kv, err := s.DownloadOptions(args.String("gid"))
		if err != nil {
			return nil, err
		}
		return optionsMap(kv), nil
	case "getDownloadBtMetaInfo":
		meta, err := s.DownloadBtMetaInfo(args.String("gid"))
		if err != nil {
			return nil, err
		}
		return btMetaInfoMap(meta), nil
	case "getActiveDownload":
		gids, err := s.ActiveDownloads()
		if err != nil {
			return nil, err
		}
		return stringList(gids), nil
	}
	return nil, core.NotImplemented(method)
}

// resultCode reports engine failures of simple mutations as their numeric
// code instead of an error.
func resultCode(err error) (interface{}, error) {
	if err == nil {
		return 0, nil
	}
	if native, ok := core.NativeCode(err); ok && core.CodeOf(err) == core.CodeEngineError {
		return native, nil
	}
	return nil, err
}

func optionalString(v string, ok bool, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}
