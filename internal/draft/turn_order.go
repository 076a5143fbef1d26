package draft

// Order is the fixed tournament ban/pick sequence. Every draft walks
// these 20 steps in order; TurnIndex is the cursor into this slice.
var Order = []Turn{
	// Ban Phase 1
	{Phase: PhaseBan, Side: SideBlue},
	{Phase: PhaseBan, Side: SideRed},
	{Phase: PhaseBan, Side: SideBlue},
	{Phase: PhaseBan, Side: SideRed},
	{Phase: PhaseBan, Side: SideBlue},
	{Phase: PhaseBan, Side: SideRed},
	// Pick Phase 1
	{Phase: PhasePick, Side: SideBlue},
	{Phase: PhasePick, Side: SideRed},
	{Phase: PhasePick, Side: SideRed},
	{Phase: PhasePick, Side: SideBlue},
	{Phase: PhasePick, Side: SideBlue},
	{Phase: PhasePick, Side: SideRed},
	// Ban Phase 2
	{Phase: PhaseBan, Side: SideRed},
	{Phase: PhaseBan, Side: SideBlue},
	{Phase: PhaseBan, Side: SideRed},
	{Phase: PhaseBan, Side: SideBlue},
	// Pick Phase 2
	{Phase: PhasePick, Side: SideRed},
	{Phase: PhasePick, Side: SideBlue},
	{Phase: PhasePick, Side: SideBlue},
	{Phase: PhasePick, Side: SideRed},
}
