package metrics

// Op name constants passed to RecordOp, trimmed to the operations
// internal/fs.fileSystem actually implements (everything else falls
// through to fuseutil.NotImplementedFileSystem and is never recorded).
const (
	OpLookUpInode = "LookUpInode"
	OpMkDir       = "MkDir"
	OpCreateFile  = "CreateFile"
	OpRmDir       = "RmDir"
	OpUnlink      = "Unlink"
	OpReadFile    = "ReadFile"
	OpWriteFile   = "WriteFile"
)
