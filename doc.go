/*
Package sectable implements an embedded, file-backed key-value store keyed
by fixed-width binary keys, with variable-length, multi-valued records and
a companion content-addressable compressed-blob archive.

Data Structure Documentation

Table

A table is a directory holding a configuration record and up to 256 sector
files, one per value of the first key byte, created lazily on first write.

	Table directory:
	+------+------+--------+-------+--------+
	| .cfg | LOCK | 00.sct |  ...  | ff.sct |
	+------+------+--------+-------+--------+

The configuration record stores the key length (>= 4 bytes, immutable) and
the fixed record length (0 for variable-length records). The LOCK file
carries the advisory lock held by write-class operations.

Sector

A sector file contains a fixed header followed by an append-only node
arena. The header points at a chain of index nodes, one per 4-byte key
prefix present in the sector; each index node points at the head and tail
of a chain of record nodes.

	Sector layout:
	+-----------+-------------+-----------------------+------------+
	| magic (4) | version (4) | index head offset (8) | node arena |
	+-----------+-------------+-----------------------+------------+

	Index node:
	+----------+----------+----------+----------------+
	| next (8) | head (8) | tail (8) | key bytes 1..3 |
	+----------+----------+----------+----------------+

	Record node:
	+----------+---------------------+-----------+----------+---------+
	| next (8) | key bytes 4..keyLen | total (2) | dlen (2) | payload |
	+----------+---------------------+-----------+----------+---------+

Records for one full key form an append-ordered list. Records are never
rewritten in place: new data is appended, unlinking a list merely zeroes
its index entry, and the space is reclaimed by the next collation, which
rewrites the table into staging sectors and atomically renames them over
the originals.

Archive

An archive table holds compressed blobs addressed by the MD5 digest of
their content. The first two key bytes select a block file; each entry
stores the remaining fourteen key bytes, a length, and the blob followed
by a one-byte compression tag.

	Block file entry:
	+--------------------+----------------+---------------------+
	| key remainder (14) | length (4, LE) | blob + tag (1 byte) |
	+--------------------+----------------+---------------------+

Fetching an entry decompresses it and verifies that the content still
hashes to the requested key.
*/
package sectable
