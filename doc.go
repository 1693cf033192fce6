/*
Package chash implements weighted consistent hashing.

In general, consistent hashing is all about mapping of object from a very big
set of values (e.g. request id) to object from a quite small set (e.g. cache
server address). The word "consistent" means that adding or removing a server
remaps only the objects which were mapped near it on the ring, not the whole
key space.

Each target (server) is represented on the ring by a number of virtual nodes
proportional to its weight: Replicas points per weight unit, weight being in
range [1, 10]. The sorted array of those points is called continuum. It is
built lazily, when a ring is used after its targets were changed; building it
explicitly is called freezing.

Lookup returns a preference list of distinct targets met clockwise from the
key's position on the ring. LookupBalance picks one target from such list
at random, spreading load of a hot key over a bounded set of targets.

A frozen ring can be serialized into a compact binary form, saved to a file
and loaded by another process. The format is compatible with the one used by
libchash and its language bindings.

For more theory about the subject please see this great document:
https://theory.stanford.edu/~tim/s16/l/l1.pdf
*/
package chash
