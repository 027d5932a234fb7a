package sandboxargs

import "os"

// statReadable reports whether path exists (os.Stat succeeds). It stands in
// for client.c's access(path, R_OK) check before adding a --profile flag;
// read permission itself is not tested.
func statReadable(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
