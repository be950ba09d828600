/*
Package pipeline turns a job description into a task iterator and a sink.

Jobs come from a TOML file (see Config) or a JSON request validated against
the job schema (see ParseJobJSON).  Either way, the stage name selects one of
the tasks.Planner factories and the stage parameters are decoded into that
factory's parameter struct.
*/
package pipeline
