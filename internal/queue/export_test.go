package queue

var NextStreamID = nextStreamID
