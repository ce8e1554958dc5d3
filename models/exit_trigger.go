package models

type ExitTrigger string

const (
	ExitTriggerStopLoss   ExitTrigger = "Stop Loss"
	ExitTriggerTakeProfit ExitTrigger = "Take Profit"
	ExitTriggerStrategy   ExitTrigger = "Strategy"
	ExitTriggerEndOfData  ExitTrigger = "End Of Data"
	ExitTriggerNone       ExitTrigger = ""
)
