/*
Package sandbox emulates a Node.js host process for loading CommonJS adapters.

# Overview

A Host is one emulated process: a goja runtime driven by a goja_nodejs event
loop, with a global process object, console, timers and a CommonJS module
system whose two steps are separately overridable:

  - Resolve maps a specifier to a filename (relative and absolute paths,
    .js/.json probing, package.json main, index files, node_modules).
  - Each Module carries its own Require and Compile functions, looked up at
    call time, so a loader can replace them before the source runs.

File loading goes through Extension loaders keyed by file extension.

# Load cycles

LoadModule installs a wrapping .js loader with InstallScoped, loads the entry
file and restores the original loader when it returns, whether the load
succeeded, failed or panicked. Only one installation per extension can be
active; a second one fails with ErrCycleInProgress.

During a cycle every compiled module can have:

 1. its require redirected to a mock table,
 2. its module.parent cleared (entry file only),
 3. its source wrapped so chosen globals are shadowed by proxies.

# Threading

JS state is owned by the loop goroutine. Go code enters it through Do, which
waits for the job and maps an unsandboxed process.exit to *ExitError. Do
returns ErrHostBusy while another job holds the host. Calling Close from a
job deadlocks.

# Usage Example

	host, err := sandbox.NewHost(sandbox.DefaultConfig(), logger)
	if err != nil {
		return err
	}
	defer host.Close()

	err = host.Do(ctx, func(vm *goja.Runtime) error {
		_, err := host.LoadModule("main.js", sandbox.LoadOptions{
			FakeNotRequired: true,
		})
		return err
	})
*/
package sandbox
