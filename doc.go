/*
Package mfr redirects Win32-style file system and registry calls made by a
packaged application so that it can write to its install directory and to
system folders while running from an immutable package image.

# Overview

Every path a call names can live in three places:

  - the redirection area: a per-user writable mirror of the package root,
    which receives every copy-on-write
  - the package image: the read-only install location, with well-known
    system folders stored under VFS folder names such as VFS\SystemX64
  - the native file system

A Shim classifies the requested path, maps it to its equivalent in each of
the three areas, probes those candidates in priority order (redirected,
package, native) and decides which one the real call operates on. Writes
copy the winning file into the redirection area first; reads use it where
it is and report it read-only.

# Basic Usage

	backend := realfs.NewOS("")

	shim, err := mfr.New(mfr.Config{
	    PackageRoot:  `C:\Program Files\WindowsApps\Contoso.App_1.0.0.0_x64__8wekyb3d8bbwe`,
	    WritableRoot: `C:\Users\me\AppData\Local\Packages\Contoso.App_8wekyb3d8bbwe\LocalCache\Local\Microsoft\WritablePackageRoot`,
	    SystemDrive:  `C:`,
	    Folders:      folders,
	}, backend, mfr.WithLogger(slog.Default()))

	// Copies settings.ini into the writable package root, then opens the copy
	f, err := shim.CreateFile(ctx, pkgRoot+`\settings.ini`, win32.GENERIC_WRITE,
	    win32.OPEN_EXISTING, win32.FILE_ATTRIBUTE_NORMAL)

The config package loads a Config from a JSON-with-comments file and builds
the standard VFS folder table.

# Folder Mappings

A FolderMapping ties a native folder (C:\Windows\System32) to its package
folder (<package>\VFS\SystemX64) and to its redirected folder
(<writable root>\VFS\SystemX64). Candidates are derived by replacing the
matched base, so a path and its candidates always share the same relative
tail. Local mappings, where the platform itself already redirects the
native folder to a per-user location, are matched before traditional ones.

# Operations

Each call follows a row of the operation table (see PolicyFor):

  - Reads expose the winner directly and mark package and native files
    read-only
  - Writes copy the winner into the redirection area, or create the file
    there when it exists nowhere
  - Deleting a file or directory that only exists in the package or native
    area succeeds without removing anything
  - Copy and move read the source where it is and write the destination
    into the redirection area
  - Enumerations merge the candidate directories, yielding each file name
    once and every directory from every area

Plan runs the same decision without touching the disk.

# Failure Handling

A failure inside the redirection logic never reaches the caller: the real
call is made with the caller's original arguments instead. Calls the
backend makes back into the Shim on the same context pass straight
through.

# Limitations

  - Files that only exist in the package or native area cannot really be
    deleted; the deletion is reported but the file stays visible
  - Concurrent materializations of the same file are not serialized; the
    loser of the race finds the copy already present
*/
package mfr
