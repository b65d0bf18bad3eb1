// snapgov is the governance CLI for the partitioned data lake: it
// validates partitions, promotes snapshots, resolves selections, and
// audits the registry against storage.
package main

func main() {
	Execute()
}
