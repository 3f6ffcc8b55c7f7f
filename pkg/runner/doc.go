/*
Package runner implements the host loop that drives an answering machine from
a line-oriented stream.

The runner speaks the starting prompt, reads one input at a time through a
pluggable IOHandler, routes it to the machine and writes the response back.
It stops after the quit sequence, on end of input (speaking the leave
greeting) or when the context is canceled. When a SnapshotStore and a session
ID are configured the conversation state is saved after every turn and
restored on the next run.

# Key Components

  - Runner: the loop itself.
  - IOHandler: decouples how inputs are read and responses shown.
  - TextHandler: interactive terminal usage, with optional markdown rendering.
  - JSONHandler: JSON-lines for headless hosts.

# Usage

	m, _ := parley.New()
	r := runner.New(
		runner.WithSessionID("user-1"),
		runner.WithStore(store),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx, m); err != nil {
		log.Fatal(err)
	}
*/
package runner
