package wasm

// Functions the engine module must export. Strings cross the boundary as
// NUL-terminated byte sequences allocated with malloc.
const (
	fnMalloc = "malloc"
	fnFree   = "free"

	fnRunCommand = "engine_run_command" // (cmd i32)
	fnRunFile    = "engine_run_file"    // (path i32)
	fnStep       = "engine_step"        // () -> ok i32
	fnResetRun   = "engine_reset_run"   // ()

	fnTimestep        = "engine_current_timestep"     // () -> i64
	fnRunTimesteps    = "engine_run_timesteps"        // () -> i64
	fnRunTotal        = "engine_run_total_timesteps"  // () -> i64
	fnStepsPerSecond  = "engine_timesteps_per_second" // () -> f64
	fnNumAtoms        = "engine_num_atoms"            // () -> i32
	fnMemoryUsage     = "engine_memory_usage"         // () -> i64
	fnLastCommand     = "engine_last_command"         // () -> str i32
	fnErrorMessage    = "engine_error_message"        // () -> str i32
	fnPointer         = "engine_pointer"              // (kind i32) -> offset i32
	fnCount           = "engine_count"                // (kind i32) -> elements i32
	fnComputeBonds    = "engine_compute_bonds"        // () -> bonds i32
	fnComputeParticle = "engine_compute_particles"    // () -> atoms i32

	fnModifierCount = "engine_modifier_count" // (kind i32) -> n i32
	fnModifierName  = "engine_modifier_name"  // (kind, index i32) -> str i32
	fnModifierShape = "engine_modifier_shape" // (kind, name i32) -> shape i32, -1 if undefined
	fnModifierSync  = "engine_modifier_sync"  // (kind i32)
	fnModifierRows  = "engine_modifier_rows"  // (kind, name i32) -> i32
	fnModifierCols  = "engine_modifier_cols"  // (kind, name i32) -> i32
	fnModifierData  = "engine_modifier_data"  // (kind, name i32) -> f64 block i32
)

var required = []string{
	fnMalloc, fnFree,
	fnRunCommand, fnRunFile, fnStep, fnResetRun,
	fnTimestep, fnRunTimesteps, fnRunTotal, fnStepsPerSecond,
	fnNumAtoms, fnMemoryUsage, fnLastCommand, fnErrorMessage,
	fnPointer, fnCount, fnComputeBonds, fnComputeParticle,
	fnModifierCount, fnModifierName, fnModifierShape, fnModifierSync,
	fnModifierRows, fnModifierCols, fnModifierData,
}

// Host imports provided to the module.
const (
	hostModule   = "env"
	hostPostStep = "post_step_callback" // () -> halt i32
)
