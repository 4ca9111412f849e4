// Package browser supervises the external Chromium process and speaks the
// remote-debugging protocol to it.
//
// A Supervisor launches an Instance with a disposable profile, waits for
// the debugging endpoint to come up and later tears the whole process tree
// down. A Session attaches to a running Instance and hands out one Tab per
// page visit.
//
//	sup := browser.NewSupervisor(browser.Config{LogFile: "chrome.log"})
//	inst, err := sup.Start(ctx)
//	if err != nil {
//		return err
//	}
//	defer sup.Stop(inst)
//
//	sess, err := browser.Connect(ctx, inst, logger)
package browser
